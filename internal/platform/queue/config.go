package queue

import (
	"errors"
	"time"

	"github.com/unicorn-labs/unicorn-go/internal/platform/env"
)

type Config struct {
	Workers      int
	Batch        int
	PollInterval time.Duration
	Visibility   time.Duration
	MaxReceives  int
	RetryBase    time.Duration
}

// ConfigFromEnv reads <prefix>_WORKERS, <prefix>_BATCH and friends.
func ConfigFromEnv(prefix string) (Config, error) {
	workers, err := env.Int(prefix+"_WORKERS", 4)
	if err != nil {
		return Config{}, err
	}
	batch, err := env.Int(prefix+"_BATCH", 10)
	if err != nil {
		return Config{}, err
	}
	poll, err := env.Duration(prefix+"_POLL_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}
	visibility, err := env.Duration(prefix+"_VISIBILITY_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	maxReceives, err := env.Int(prefix+"_MAX_RECEIVES", 5)
	if err != nil {
		return Config{}, err
	}
	retryBase, err := env.Duration(prefix+"_RETRY_BASE", 2*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Workers:      workers,
		Batch:        batch,
		PollInterval: poll,
		Visibility:   visibility,
		MaxReceives:  maxReceives,
		RetryBase:    retryBase,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return errors.New("queue workers must be positive")
	}
	if c.Batch <= 0 {
		return errors.New("queue batch must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("queue poll interval must be positive")
	}
	if c.Visibility <= 0 {
		return errors.New("queue visibility timeout must be positive")
	}
	if c.MaxReceives < 0 {
		return errors.New("queue max receives must be >= 0")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Batch <= 0 {
		c.Batch = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Visibility <= 0 {
		c.Visibility = 30 * time.Second
	}
	return c
}
