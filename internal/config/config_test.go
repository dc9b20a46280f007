package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"caseflow/internal/config"
)

func TestGenerateDefaultIsValid(t *testing.T) {
	for _, d := range []string{"python", "go"} {
		cfg, err := config.FromYAML([]byte(config.GenerateDefault(d)))
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if cfg.Dialect != d || cfg.Conventions.Orchestration != "ruleflow" || cfg.Server.BasePath != "/v1" {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	}
}

func TestDefaultsFillMissingFields(t *testing.T) {
	cfg, err := config.FromYAML([]byte("dialect: go\nconventions:\n  rule_prefix: r_\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeDir != "./runtime" || cfg.Conventions.RulePrefix != "r_" || cfg.Conventions.PackagePrefix != "package_" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Simulation.Timeout().Seconds() != 10 {
		t.Fatalf("timeout: %v", cfg.Simulation.Timeout())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"dialect":     "dialect: cobol\n",
		"source file": "source_file: ../engine.py\n",
		"prefixes":    "conventions:\n  package_prefix: x_\n  rule_prefix: x_\n",
		"base path":   "server:\n  base_path: v1\n",
		"webhook url": "webhooks:\n  - url: ftp://example.com\n",
		"empty event": "webhooks:\n  - url: http://example.com\n    events: ['']\n",
	}
	for name, doc := range cases {
		if _, err := config.FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Dialect != "python" {
		t.Fatalf("expected default dialect, got %q", cfg.Dialect)
	}
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("dialect: go\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dialect != "go" {
		t.Fatalf("expected go, got %q", cfg.Dialect)
	}
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("dialect: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := config.LoadOptional(dir); err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestWebhookActive(t *testing.T) {
	off := false
	if (config.WebhookConfig{URL: "http://x", Enabled: &off}).Active() {
		t.Fatalf("disabled webhook reported active")
	}
	if !(config.WebhookConfig{URL: "http://x"}).Active() {
		t.Fatalf("webhook without enabled flag should be active")
	}
}
