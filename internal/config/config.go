// Package config provides the configuration schema, loader, and file watcher
// for the Cadence adaptive reading server.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps [time.Duration] so YAML values can be written in the
// human form time.ParseDuration accepts (e.g., "5m", "90s").
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the Cadence server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the corresponding [slog.Level]. Unrecognised or empty
// levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for Cadence.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Agent   AgentConfig   `yaml:"agent"`
	Trainer TrainerConfig `yaml:"trainer"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig holds network and logging settings for the Cadence server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AgentConfig holds the actor-critic network and optimizer parameters.
// Zero values select the built-in defaults of the agent constructor.
type AgentConfig struct {
	// StateSize is the dimensionality of the observation vector.
	StateSize int `yaml:"state_size"`

	// ActionSize is the dimensionality of the action vector.
	ActionSize int `yaml:"action_size"`

	// HiddenSize is the width of the two hidden layers in both networks.
	HiddenSize int `yaml:"hidden_size"`

	// ActorLR is the Adam learning rate for the actor network.
	ActorLR float64 `yaml:"actor_lr"`

	// CriticLR is the Adam learning rate for the critic network.
	CriticLR float64 `yaml:"critic_lr"`

	// Gamma is the discount factor in (0, 1].
	Gamma float64 `yaml:"gamma"`

	// NStep is the bootstrapping horizon for return estimation.
	NStep int `yaml:"n_step"`

	// Seed initialises the network weights and the exploration noise source.
	// Zero seeds from the current time.
	Seed int64 `yaml:"seed"`
}

// TrainerConfig holds the background training scheduler parameters.
// Zero values select the scheduler's built-in defaults.
type TrainerConfig struct {
	// Interval is how often the background loop attempts a training pass.
	Interval Duration `yaml:"interval"`

	// MaxSteps is the step count at which a buffered episode is packaged
	// even without a terminal signal.
	MaxSteps int `yaml:"max_steps"`

	// MinEpisodes is the minimum number of completed episodes required
	// before a training pass runs.
	MinEpisodes int `yaml:"min_episodes"`

	// MaxEpisodes bounds the number of completed episodes retained for
	// training. Older episodes are evicted first.
	MaxEpisodes int `yaml:"max_episodes"`

	// RewardWindow is the number of trailing rewards used for the running
	// average reported in training stats.
	RewardWindow int `yaml:"reward_window"`
}

// StorageConfig holds persistence settings for training artifacts.
type StorageConfig struct {
	// Path is the SQLite database file. Empty disables persistence, and
	// ":memory:" keeps artifacts for the lifetime of the process only.
	Path string `yaml:"path"`
}
