package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultRetryInterval   = 2 * time.Second
	DefaultRefreshInterval = 15 * time.Second
	DefaultDialTimeout     = 5 * time.Second
)

// Config is the agent's view of config.yaml. The `server:` key in the same
// file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the aggregator address (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// DataFile holds the reading as `key: value` lines.
	DataFile string `yaml:"data_file"`

	// RetryInterval is the fixed wait between failed publish attempts.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// MaxAttempts bounds attempts per publish. 0 retries until the agent stops.
	MaxAttempts int `yaml:"max_attempts"`

	// RefreshInterval republishes the current reading so it outlives the
	// aggregator's expiry. 0 disables periodic republishing.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// Watch republishes whenever DataFile changes on disk.
	Watch bool `yaml:"watch"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// FromArgs builds a Config from the positional `<host:port> <datafile>` form,
// with defaults for everything else. The endpoint may also be given as a URL
// such as http://host:port; only its host part is used.
func FromArgs(endpoint, dataFile string) (*Config, error) {
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("config: endpoint %q: %w", endpoint, err)
		}
		endpoint = u.Host
	}
	cfg := defaults()
	cfg.Agent.ServerEndpoint = endpoint
	cfg.Agent.DataFile = dataFile
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			RetryInterval:   DefaultRetryInterval,
			RefreshInterval: DefaultRefreshInterval,
			DialTimeout:     DefaultDialTimeout,
			Watch:           true,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if _, _, err := net.SplitHostPort(a.ServerEndpoint); err != nil {
		return fmt.Errorf("agent.server_endpoint %q: %w", a.ServerEndpoint, err)
	}
	if a.DataFile == "" {
		return fmt.Errorf("agent.data_file is required")
	}
	if a.RetryInterval <= 0 {
		return fmt.Errorf("agent.retry_interval must be positive")
	}
	if a.MaxAttempts < 0 {
		return fmt.Errorf("agent.max_attempts must not be negative")
	}
	if a.RefreshInterval < 0 {
		return fmt.Errorf("agent.refresh_interval must not be negative")
	}
	if a.DialTimeout <= 0 {
		return fmt.Errorf("agent.dial_timeout must be positive")
	}
	return nil
}
