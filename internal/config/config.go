// Package config loads depsnap settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jward/depsnap/internal/logging"
)

// StoreConfig locates the snapshot database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	DefaultTarget string        `yaml:"default_target"`
	Persist       bool          `yaml:"persist"`
}

// ScriptsConfig locates scripted rule handlers.
type ScriptsConfig struct {
	Dir string `yaml:"dir"`
}

// Config is the top-level configuration.
type Config struct {
	Logging logging.Config `yaml:"logging"`
	Store   StoreConfig    `yaml:"store"`
	Engine  EngineConfig   `yaml:"engine"`
	Scripts ScriptsConfig  `yaml:"scripts"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: logging.Config{Level: "info", Format: "text", Output: "stderr"},
		Store:   StoreConfig{Path: ".depsnap/depsnap.db"},
		Engine:  EngineConfig{DefaultTarget: "any", Persist: true},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path or a missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DEPSNAP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEPSNAP_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("DEPSNAP_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("DEPSNAP_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DEPSNAP_SCRIPTS_DIR"); v != "" {
		c.Scripts.Dir = v
	}
	if v := os.Getenv("DEPSNAP_PERSIST"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DEPSNAP_PERSIST: %w", err)
		}
		c.Engine.Persist = b
	}
	if v := os.Getenv("DEPSNAP_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: DEPSNAP_DEBOUNCE: %w", err)
		}
		c.Engine.Debounce = d
	}
	return nil
}
