package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models cadence.yml.
type Config struct {
	Workspace struct {
		User string `yaml:"user"`
	} `yaml:"workspace"`
	Scheduling struct {
		// WeekStart is the weekday weekly period counters key on.
		// Only "monday" is supported today; the field exists so the
		// stored value survives a future widening.
		WeekStart string `yaml:"week_start"`
	} `yaml:"scheduling"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Retention struct {
		// EventDays caps how long event rows are kept; 0 keeps forever.
		EventDays int `yaml:"event_days"`
	} `yaml:"retention"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one mutation-event subscriber. External
// views poll-free refresh off these deliveries.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create with cadence init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scheduling.WeekStart == "" {
		c.Scheduling.WeekStart = "monday"
	}
	if c.Scheduling.WeekStart != "monday" {
		return fmt.Errorf("scheduling.week_start %q not supported; only monday", c.Scheduling.WeekStart)
	}
	if c.Retention.EventDays < 0 {
		return fmt.Errorf("retention.event_days must not be negative")
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cadence.yml")
}

// Default returns the default Config struct.
func Default(user string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(GenerateDefault(user)), &cfg)
	_ = cfg.Validate()
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(user string) string {
	return fmt.Sprintf(defaultTemplate, user)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  user: %s

scheduling:
  week_start: monday

auth:
  jwt_secret: ""

server:
  addr: ":8080"

retention:
  event_days: 0
`
