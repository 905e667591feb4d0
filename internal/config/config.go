// Package config reads the osmp configuration file
// (~/.config/osmp/config.yaml). Every field is optional; the commands apply
// a field only when the matching flag was not given on the command line.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/osmp/internal/logger"
	"github.com/samcharles93/osmp/pkg/osmp"
)

type Config struct {
	// Container is the default .osmp file for inspect, cat, mount and serve.
	Container string `yaml:"container"`

	// Mount
	Mountpoint string `yaml:"mountpoint"`
	AllowOther *bool  `yaml:"allow_other"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Streams
	StreamMode string `yaml:"stream_mode"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Path returns the default config file location, or "" when the user config
// directory is unknown.
func Path() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "osmp", "config.yaml")
}

// Load reads the default config file. A missing file yields a zero Config.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path. A missing file
// yields a zero Config.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the enumerated fields.
func (c Config) Validate() error {
	if c.StreamMode != "" {
		if _, err := osmp.ParseAccessMode(c.StreamMode); err != nil {
			return err
		}
	}
	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	switch c.LogFormat {
	case "", logger.FormatPretty, logger.FormatJSON, logger.FormatText:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
