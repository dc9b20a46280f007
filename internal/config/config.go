package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"caseflow/internal/dialect"
)

// FileName is the config file looked up in the working directory.
const FileName = "caseflow.yml"

// Config models caseflow.yml.
type Config struct {
	RuntimeDir  string              `yaml:"runtime_dir"`
	Dialect     string              `yaml:"dialect"`
	SourceFile  string              `yaml:"source_file"`
	Conventions dialect.Conventions `yaml:"conventions"`
	Server      ServerConfig        `yaml:"server"`
	Simulation  SimulationConfig    `yaml:"simulation"`
	Webhooks    []WebhookConfig     `yaml:"webhooks"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// JWTSecret enables bearer authentication when set.
	JWTSecret string `yaml:"jwt_secret"`
}

type SimulationConfig struct {
	Python         string `yaml:"python"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the simulation deadline.
func (s SimulationConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the webhook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.RuntimeDir == "" {
		c.RuntimeDir = "./runtime"
	}
	if c.Dialect == "" {
		c.Dialect = "python"
	}
	c.Conventions = c.Conventions.WithDefaults()
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v1"
	}
	if c.Simulation.Python == "" {
		c.Simulation.Python = "python3"
	}
	if c.Simulation.TimeoutSeconds == 0 {
		c.Simulation.TimeoutSeconds = 10
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Dialect {
	case "python", "go":
	default:
		return fmt.Errorf("config.dialect must be python or go, got %q", c.Dialect)
	}
	if strings.ContainsAny(c.SourceFile, `/\`) {
		return fmt.Errorf("config.source_file must be a bare file name")
	}
	conv := c.Conventions
	for field, v := range map[string]string{
		"orchestration":  conv.Orchestration,
		"package_prefix": conv.PackagePrefix,
		"rule_prefix":    conv.RulePrefix,
		"output_name":    conv.OutputName,
		"input_name":     conv.InputName,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("config.conventions.%s is empty", field)
		}
	}
	if conv.PackagePrefix == conv.RulePrefix {
		return fmt.Errorf("config.conventions package_prefix and rule_prefix must differ")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Simulation.TimeoutSeconds < 0 {
		return fmt.Errorf("config.simulation.timeout_seconds must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook %d url %q must be http or https", i, hook.URL)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("webhook %d has empty event filter", i)
			}
		}
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// Load reads and validates the config in dir.
func Load(dir string) (*Config, error) {
	return FromFile(Path(dir))
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
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

// GenerateDefault returns a commented starter caseflow.yml.
func GenerateDefault(dialectName string) string {
	return fmt.Sprintf(defaultTemplate, dialectName)
}

const defaultTemplate = `runtime_dir: ./runtime
dialect: %s
# source_file: engine.py

conventions:
  orchestration: ruleflow
  package_prefix: package_
  rule_prefix: rule_
  class_marker: DecisionEngine
  output_name: output
  input_name: input

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  # jwt_secret: change-me

simulation:
  python: python3
  timeout_seconds: 10

# webhooks:
#   - url: https://example.com/hooks/caseflow
#     events: [add_package, update_rule]
#     timeout_seconds: 5
`
