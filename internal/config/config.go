package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models argus.yml.
type Config struct {
	Marketplace struct {
		Name string `yaml:"name"`
	} `yaml:"marketplace"`
	Eligibility   EligibilityConfig   `yaml:"eligibility"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Routes        RoutesConfig        `yaml:"routes"`
	Webhooks      []WebhookConfig     `yaml:"webhooks"`
}

type EligibilityConfig struct {
	RequireVerifiedInvestigator bool `yaml:"require_verified_investigator"`
	RequireVerifiedAgency       bool `yaml:"require_verified_agency"`
}

type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RoutesConfig holds redirect-hint templates. Placeholders {mandate} and
// {investigator} are expanded at resolve time.
type RoutesConfig struct {
	MandateAssigned  string `yaml:"mandate_assigned"`
	MandateCompleted string `yaml:"mandate_completed"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Marketplace.Name == "" {
		return fmt.Errorf("config.marketplace.name is required")
	}
	for name, route := range map[string]string{
		"routes.mandate_assigned":  c.Routes.MandateAssigned,
		"routes.mandate_completed": c.Routes.MandateCompleted,
	} {
		if route == "" {
			continue
		}
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("config.%s must start with /", name)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event filter", i)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "argus.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with argus config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
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

const defaultTemplate = `marketplace:
  name: argus

eligibility:
  require_verified_investigator: true
  require_verified_agency: true

notifications:
  enabled: true

routes:
  mandate_assigned: /agency/mandates/{mandate}
  mandate_completed: /agency/mandates/{mandate}/rate/{investigator}
`
