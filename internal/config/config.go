// Package config loads the server configuration from an optional YAML file.
// Command-line flags override file values; see cmd/server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvFile names the environment variable holding the config file path.
const EnvFile = "QUADS_CONFIG"

// Storage drivers.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

type Config struct {
	GRPCAddr    string  `yaml:"grpc_addr"`
	HTTPAddr    string  `yaml:"http_addr"`
	MetricsAddr string  `yaml:"metrics_addr"`
	Storage     Storage `yaml:"storage"`
	NATS        NATS    `yaml:"nats"`
	Log         Log     `yaml:"log"`
	Tracing     Tracing `yaml:"tracing"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	// Path is the Badger directory or SQLite file. An empty Badger path
	// keeps data in memory.
	Path string `yaml:"path"`
}

// NATS publishing is off unless URL is set.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		Storage: Storage{
			Driver: DriverBadger,
			Path:   "./data/badger",
		},
		NATS: NATS{Subject: "quads.events"},
		Log:  Log{Level: "info"},
		Tracing: Tracing{
			ServiceName: "quads-api",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Callers apply their overrides and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverBadger:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return fmt.Errorf("at least one of http_addr and grpc_addr is required")
	}
	return nil
}
