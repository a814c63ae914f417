package config

const (
	defaultStateDir            = "~/.local/share/glint"
	defaultLogDir              = "~/.local/share/glint/logs"
	defaultAPIBind             = "127.0.0.1:7319"
	defaultPreferredFacing     = "environment"
	defaultFrameIntervalMillis = 100
	defaultHistoryMaxEntries   = 100
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Camera: Camera{
			PreferredFacing: defaultPreferredFacing,
			HotplugEvents:   true,
		},
		Decode: Decode{
			FrameIntervalMillis: defaultFrameIntervalMillis,
		},
		History: History{
			MaxEntries: defaultHistoryMaxEntries,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
