package workflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unicorn-labs/unicorn-go/internal/platform/env"
)

const (
	ModeHTTP  = "http"
	ModeQueue = "queue"
)

type Config struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	mode, err := env.OneOf("UNICORN_WORKFLOW_MODE", ModeQueue, ModeHTTP, ModeQueue)
	if err != nil {
		return Config{}, err
	}
	timeout, err := env.Duration("UNICORN_WORKFLOW_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Mode:    mode,
		URL:     env.String("UNICORN_WORKFLOW_URL", ""),
		Timeout: timeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeHTTP:
		if strings.TrimSpace(c.URL) == "" {
			return errors.New("UNICORN_WORKFLOW_URL is required in http mode")
		}
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("workflow url must be http(s): %q", c.URL)
		}
	case ModeQueue:
	default:
		return fmt.Errorf("unknown workflow mode %q", c.Mode)
	}
	if c.Timeout <= 0 {
		return errors.New("workflow timeout must be positive")
	}
	return nil
}

// New builds the engine selected by cfg. q is only used in queue mode.
func New(cfg Config, q Enqueuer) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeHTTP {
		return NewHTTPEngine(cfg.URL, cfg.Timeout)
	}
	return NewQueueEngine(q)
}
