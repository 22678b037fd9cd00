package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models lendline.yml.
type Config struct {
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Agents struct {
		Endpoints    []string `yaml:"endpoints"`
		CardTimeout  string   `yaml:"card_timeout"`
		SendTimeout  string   `yaml:"send_timeout"`
		PollInterval string   `yaml:"poll_interval"`
		PollAttempts int      `yaml:"poll_attempts"`
	} `yaml:"agents"`
	Router struct {
		DefaultAgent     string   `yaml:"default_agent"`
		FallbackKeywords []string `yaml:"fallback_keywords"`
	} `yaml:"router"`
	Lifecycle struct {
		CreationMode string `yaml:"creation_mode"`
	} `yaml:"lifecycle"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook is one outbound event subscription.
type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ll config init", path)
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
	for i, endpoint := range c.Agents.Endpoints {
		if endpoint == "" {
			return fmt.Errorf("config.agents.endpoints[%d] is empty", i)
		}
	}
	for _, field := range []struct{ name, value string }{
		{"card_timeout", c.Agents.CardTimeout},
		{"send_timeout", c.Agents.SendTimeout},
		{"poll_interval", c.Agents.PollInterval},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("config.agents.%s: %w", field.name, err)
		}
	}
	if c.Agents.PollAttempts < 0 {
		return fmt.Errorf("config.agents.poll_attempts must not be negative")
	}
	switch c.Lifecycle.CreationMode {
	case "", "best_effort", "exclusive":
	default:
		return fmt.Errorf("config.lifecycle.creation_mode must be best_effort or exclusive")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Duration parses a duration field, falling back when unset or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "lendline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
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

const defaultTemplate = `server:
  listen: 127.0.0.1:8080

agents:
  endpoints:
    - http://localhost:10001
  card_timeout: 5s
  send_timeout: 60s
  poll_interval: 1s
  poll_attempts: 30

router:
  default_agent: Web Search Agent
  fallback_keywords:
    - current
    - latest
    - recent
    - news
    - today
    - rates
    - market
    - interest
    - search
    - web

lifecycle:
  creation_mode: best_effort

webhooks: []
`
