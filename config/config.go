// Package config reads the plugin settings from HOLYHOOK_* environment variables and persists module toggles.
package config

import (
	"fmt"
	"os"

	"github.com/ZenLiuCN/holyhook/platform"
	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

// Config is the process level configuration, fixed for the lifetime of an attach.
type Config struct {
	// Platform overrides the detected platform tag, e.g. "linux32".
	Platform string `env:"HOLYHOOK_PLATFORM"`
	// Store is the TOML file keeping module toggles and debug levels.
	Store     string   `env:"HOLYHOOK_STORE"      envDefault:"holyhook.toml"`
	LogLevel  string   `env:"HOLYHOOK_LOG_LEVEL"  envDefault:"info"`
	LogFormat string   `env:"HOLYHOOK_LOG_FORMAT" envDefault:"console"`
	LogOutput []string `env:"HOLYHOOK_LOG_OUTPUT" envDefault:"stderr" envSeparator:","`
	// Debug enables the engine debug log of every patch.
	Debug bool `env:"HOLYHOOK_DEBUG"`
	// Disable names modules kept unloaded for this attach regardless of the store.
	Disable []string `env:"HOLYHOOK_DISABLE" envSeparator:","`
}

// Load parses the environment.
func Load() (c Config, err error) {
	if err = env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return
}

// Tag is the configured platform, detected when not set.
func (c Config) Tag() (platform.Tag, error) {
	if c.Platform == "" {
		if t := platform.Detect(); t != platform.Unknown {
			return t, nil
		}
		return platform.Unknown, fmt.Errorf("unsupported host platform, set HOLYHOOK_PLATFORM")
	}
	return platform.Parse(c.Platform)
}

// Logger builds the process logger. Format is "console" or "json".
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	var zc zap.Config
	switch c.LogFormat {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: want console or json", c.LogFormat)
	}
	zc.Level = level
	zc.OutputPaths = c.LogOutput
	if len(zc.OutputPaths) == 0 {
		zc.OutputPaths = []string{"stderr"}
	}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.InitialFields = map[string]any{"pid": os.Getpid()}
	return zc.Build()
}
