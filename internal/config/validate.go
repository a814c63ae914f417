package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateDecode(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateCamera() error {
	switch c.Camera.PreferredFacing {
	case "environment", "user":
		return nil
	default:
		return fmt.Errorf("camera.preferred_facing must be %q or %q, got %q", "environment", "user", c.Camera.PreferredFacing)
	}
}

func (c *Config) validateDecode() error {
	if c.Decode.FrameIntervalMillis <= 0 {
		return errors.New("decode.frame_interval_millis must be positive")
	}
	if c.Decode.StartTimeout < 0 {
		return errors.New("decode.start_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.MaxEntries <= 0 {
		return errors.New("history.max_entries must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q, got %q", "console", "json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
