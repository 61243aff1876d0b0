package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unicorn-labs/unicorn-go/internal/platform/env"
)

type Config struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	Region            string
	UseSSL            bool
	BucketDeadLetters string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("UNICORN_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:          env.String("UNICORN_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:         env.String("UNICORN_MINIO_ACCESS_KEY", "unicorn"),
		SecretKey:         env.String("UNICORN_MINIO_SECRET_KEY", "unicornminio"),
		Region:            env.String("UNICORN_MINIO_REGION", "us-east-1"),
		UseSSL:            useSSL,
		BucketDeadLetters: env.String("UNICORN_MINIO_BUCKET_DEAD_LETTERS", "dead-letters"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketDeadLetters) == "" {
		return errors.New("dead letters bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
