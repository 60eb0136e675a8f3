package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TrainerChanged bool
	NewTrainer     TrainerConfig

	// RestartRequired is set when fields outside the hot-reloadable set
	// changed (listen address, network shape, storage path).
	RestartRequired bool
}

// Empty reports whether the diff contains no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.TrainerChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
// Only log level and trainer cadence are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Trainer != new.Trainer {
		d.TrainerChanged = true
		d.NewTrainer = new.Trainer
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Agent != new.Agent ||
		old.Storage != new.Storage {
		d.RestartRequired = true
	}

	return d
}
