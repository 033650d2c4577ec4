package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateTryOn(); err != nil {
		return err
	}
	if err := c.validateKie(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.JWTSecret == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/fitstogo/config.toml"
		}
		return fmt.Errorf("auth.jwt_secret is required. Set FITSTOGO_JWT_SECRET env var or edit %s (create with 'fitstogo config init')", defaultPath)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.ListTTLSeconds <= 0 {
		return errors.New("redis.list_ttl_seconds must be positive")
	}
	if c.Redis.DetailTTLSeconds <= 0 {
		return errors.New("redis.detail_ttl_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTryOn() error {
	switch c.TryOn.Provider {
	case "kie", "gemini":
	default:
		return fmt.Errorf("tryon.provider: unsupported value %q (expected kie or gemini)", c.TryOn.Provider)
	}
	if c.TryOn.Workers < 1 {
		return errors.New("tryon.workers must be at least 1")
	}
	if c.TryOn.RequestRate < 0 {
		return errors.New("tryon.request_rate must not be negative")
	}
	return nil
}

func (c *Config) validateKie() error {
	if c.Kie.PollIntervalSeconds <= 0 {
		return errors.New("kie.poll_interval_seconds must be positive")
	}
	if c.Kie.MaxPollAttempts <= 0 {
		return errors.New("kie.max_poll_attempts must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
