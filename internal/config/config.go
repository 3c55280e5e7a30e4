// Package config loads the catalog configuration from a YAML file.
// Flags override file values; every field has a usable default so the CLI
// works without any config at all.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds catalog settings.
type Config struct {
	// DB is the SQLite database path.
	DB string `yaml:"db"`

	// TypesDir optionally points at a directory of CUE entity type
	// descriptors loaded in addition to the built-ins.
	TypesDir string `yaml:"types_dir"`

	// Actor is the default actor id stamped on transactions when the
	// caller does not supply one.
	Actor string `yaml:"actor"`

	// MaxWriteRetries bounds transparent retries of conflicted writes.
	MaxWriteRetries int `yaml:"max_write_retries"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DB:              "vcat.db",
		MaxWriteRetries: 3,
		LogLevel:        "info",
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.DB == "" {
		cfg.DB = Default().DB
	}
	if cfg.MaxWriteRetries <= 0 {
		cfg.MaxWriteRetries = Default().MaxWriteRetries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = Default().LogLevel
	}

	return cfg, nil
}
