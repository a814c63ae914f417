package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// Camera contains capture device selection settings.
type Camera struct {
	// PreferredDevice pins enumeration to a specific device node or
	// identifier. Empty means resolve from the persisted selection.
	PreferredDevice string `toml:"preferred_device"`
	// PreferredFacing is "environment" or "user"; rear-facing wins by default.
	PreferredFacing string `toml:"preferred_facing"`
	// HotplugEvents enables the udev netlink monitor for device
	// plug/unplug detection. Non-fatal when the socket is unavailable.
	HotplugEvents bool `toml:"hotplug_events"`
}

// Decode contains decode engine settings.
type Decode struct {
	// Formats restricts which symbologies the engine reports.
	// Empty means engine defaults (all supported formats).
	Formats []string `toml:"formats"`
	// FrameIntervalMillis throttles how often frames are fed to the engine.
	FrameIntervalMillis int `toml:"frame_interval_millis"`
	// StartTimeout bounds one-shot CLI scans, in seconds. Zero means no
	// timeout; a stuck permission prompt is not treated as a fault.
	StartTimeout int `toml:"start_timeout"`
}

// History contains bounded scan history settings.
type History struct {
	// MaxEntries caps the FIFO history; oldest scans are evicted first.
	MaxEntries int `toml:"max_entries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for glint.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Camera: device selection preferences and hot-plug monitoring
//   - Decode: decode engine formats and timing
//   - History: bounded scan history retention
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Camera  Camera  `toml:"camera"`
	Decode  Decode  `toml:"decode"`
	History History `toml:"history"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/glint/config.toml")
}

// Load locates, parses, normalizes, and validates a configuration file.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	c.Camera.PreferredDevice = strings.TrimSpace(c.Camera.PreferredDevice)
	c.Camera.PreferredFacing = strings.ToLower(strings.TrimSpace(c.Camera.PreferredFacing))
	if c.Camera.PreferredFacing == "" {
		c.Camera.PreferredFacing = defaultPreferredFacing
	}

	for i, format := range c.Decode.Formats {
		c.Decode.Formats[i] = strings.ToUpper(strings.TrimSpace(format))
	}
	if c.Decode.FrameIntervalMillis <= 0 {
		c.Decode.FrameIntervalMillis = defaultFrameIntervalMillis
	}
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = defaultHistoryMaxEntries
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// EnsureDirectories creates the state and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SelectionPath returns the path of the persisted camera selection file.
func (c *Config) SelectionPath() string {
	return filepath.Join(c.Paths.StateDir, "camera_selection.json")
}

// HistoryDBPath returns the path of the scan history database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	return filepath.Abs(trimmed)
}
