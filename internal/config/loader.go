package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Zero values pass: each component applies its own defaults.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Agent
	if cfg.Agent.StateSize < 0 {
		errs = append(errs, fmt.Errorf("agent.state_size %d must not be negative", cfg.Agent.StateSize))
	}
	if cfg.Agent.ActionSize < 0 {
		errs = append(errs, fmt.Errorf("agent.action_size %d must not be negative", cfg.Agent.ActionSize))
	}
	if cfg.Agent.HiddenSize < 0 {
		errs = append(errs, fmt.Errorf("agent.hidden_size %d must not be negative", cfg.Agent.HiddenSize))
	}
	if cfg.Agent.ActorLR < 0 {
		errs = append(errs, fmt.Errorf("agent.actor_lr %g must not be negative", cfg.Agent.ActorLR))
	}
	if cfg.Agent.CriticLR < 0 {
		errs = append(errs, fmt.Errorf("agent.critic_lr %g must not be negative", cfg.Agent.CriticLR))
	}
	if cfg.Agent.Gamma < 0 || cfg.Agent.Gamma > 1 {
		errs = append(errs, fmt.Errorf("agent.gamma %g is out of range (0, 1]", cfg.Agent.Gamma))
	}
	if cfg.Agent.NStep < 0 {
		errs = append(errs, fmt.Errorf("agent.n_step %d must not be negative", cfg.Agent.NStep))
	}

	// Trainer
	if cfg.Trainer.Interval < 0 {
		errs = append(errs, fmt.Errorf("trainer.interval %s must not be negative", cfg.Trainer.Interval))
	}
	if cfg.Trainer.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("trainer.max_steps %d must not be negative", cfg.Trainer.MaxSteps))
	}
	if cfg.Trainer.MinEpisodes < 0 {
		errs = append(errs, fmt.Errorf("trainer.min_episodes %d must not be negative", cfg.Trainer.MinEpisodes))
	}
	if cfg.Trainer.MaxEpisodes < 0 {
		errs = append(errs, fmt.Errorf("trainer.max_episodes %d must not be negative", cfg.Trainer.MaxEpisodes))
	}
	if cfg.Trainer.MinEpisodes > 0 && cfg.Trainer.MaxEpisodes > 0 &&
		cfg.Trainer.MinEpisodes > cfg.Trainer.MaxEpisodes {
		errs = append(errs, fmt.Errorf("trainer.min_episodes %d exceeds trainer.max_episodes %d",
			cfg.Trainer.MinEpisodes, cfg.Trainer.MaxEpisodes))
	}
	if cfg.Trainer.RewardWindow < 0 {
		errs = append(errs, fmt.Errorf("trainer.reward_window %d must not be negative", cfg.Trainer.RewardWindow))
	}

	// Storage availability warning
	if cfg.Storage.Path == "" {
		slog.Warn("storage.path is empty; training stats will not survive restarts")
	}

	return errors.Join(errs...)
}
