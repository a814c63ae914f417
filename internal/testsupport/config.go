package testsupport

import (
	"path/filepath"
	"testing"

	"glint/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test. It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Camera.HotplugEvents = false

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithHistoryCap overrides the bounded history size.
func WithHistoryCap(max int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.History.MaxEntries = max
	}
}

// WithPreferredDevice pins the camera preference.
func WithPreferredDevice(deviceID, facing string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Camera.PreferredDevice = deviceID
		cfg.Camera.PreferredFacing = facing
	}
}
