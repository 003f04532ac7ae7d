package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultPort           = 4567
	DefaultMaxConnections = 256
	DefaultReadTimeout    = 30 * time.Second
	DefaultMaxBodyBytes   = 1 << 20
	DefaultHTTPPort       = 8080
	DefaultStorePath      = "server_data.json"
	DefaultExpiry         = 30 * time.Second
	DefaultSweepInterval  = 2 * time.Second
	DefaultStreamInterval = 5 * time.Second
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// Port is the aggregator protocol port (default 4567).
	Port int `yaml:"port"`

	// MaxConnections caps concurrently served connections (default 256).
	MaxConnections int `yaml:"max_connections"`

	// ReadTimeout is the deadline for a client to finish its request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// MaxBodyBytes rejects publishes declaring a larger Content-Length.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// HTTPPort serves the admin API, /metrics and the WebSocket stream.
	// 0 disables the admin server.
	HTTPPort int `yaml:"http_port"`

	Store  StoreConfig  `yaml:"store"`
	Stream StreamConfig `yaml:"stream"`
}

// StoreConfig controls record expiry and the snapshot file.
type StoreConfig struct {
	// Path is the snapshot file, relative to the working directory.
	Path string `yaml:"path"`

	// Expiry is how long a record survives without a new publish.
	Expiry time.Duration `yaml:"expiry"`

	// SweepInterval is the period of the background eviction pass.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// StreamConfig controls the WebSocket broadcast.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			MaxConnections: DefaultMaxConnections,
			ReadTimeout:    DefaultReadTimeout,
			MaxBodyBytes:   DefaultMaxBodyBytes,
			HTTPPort:       DefaultHTTPPort,
			Store: StoreConfig{
				Path:          DefaultStorePath,
				Expiry:        DefaultExpiry,
				SweepInterval: DefaultSweepInterval,
			},
			Stream: StreamConfig{
				Interval: DefaultStreamInterval,
			},
		},
	}
}

// Validate checks structural constraints on cfg.
func Validate(cfg *Config) error {
	return validate(cfg)
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", s.Port)
	}
	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [0, 65535]", s.HTTPPort)
	}
	if s.HTTPPort != 0 && s.HTTPPort == s.Port {
		return fmt.Errorf("server.http_port must differ from server.port (%d)", s.Port)
	}
	if s.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive")
	}
	if s.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if s.Store.Path == "" {
		return fmt.Errorf("server.store.path is required")
	}
	if s.Store.Expiry <= 0 {
		return fmt.Errorf("server.store.expiry must be positive")
	}
	if s.Store.SweepInterval <= 0 {
		return fmt.Errorf("server.store.sweep_interval must be positive")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	return nil
}
