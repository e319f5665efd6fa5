package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IshaanNene/voyagegraph/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Crawler.MaxDepth != 1 {
		t.Errorf("expected default max depth 1, got %d", cfg.Crawler.MaxDepth)
	}
	if cfg.Crawler.PolitenessDelay != time.Second {
		t.Errorf("expected 1s politeness delay, got %s", cfg.Crawler.PolitenessDelay)
	}
	if cfg.Crawler.SiteURL() != "https://en.wikivoyage.org" {
		t.Errorf("unexpected site url %q", cfg.Crawler.SiteURL())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative depth", func(c *Config) { c.Crawler.MaxDepth = -1 }},
		{"no level1 sections", func(c *Config) { c.Crawler.Level1Sections = nil }},
		{"no level2 sections at depth 2", func(c *Config) {
			c.Crawler.MaxDepth = 2
			c.Crawler.Level2Sections = nil
		}},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }},
		{"bad base url scheme", func(c *Config) { c.Crawler.BaseURL = "ftp://example.org" }},
		{"zero timeout", func(c *Config) { c.Fetcher.RequestTimeout = 0 }},
		{"empty output", func(c *Config) { c.Storage.OutputPath = "" }},
		{"mongo without uri", func(c *Config) {
			c.Storage.Mongo.Enabled = true
			c.Storage.Mongo.URI = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voyagegraph.yaml")
	yaml := []byte(`crawler:
  language: pl
  max_depth: 2
  level2_sections: ["Zobacz"]
storage:
  output_path: ` + dir + `
`)
	if err := os.WriteFile(path, yaml, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("VOYAGEGRAPH_CRAWLER_CONCURRENCY", "4")
	t.Setenv("VOYAGEGRAPH_CRAWLER_LEVEL1_SECTIONS", "Miasta, Inne miejsca")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Crawler.Language != "pl" || cfg.Crawler.MaxDepth != 2 {
		t.Errorf("file values not applied: %+v", cfg.Crawler)
	}
	if cfg.Crawler.Concurrency != 4 {
		t.Errorf("env override not applied, concurrency=%d", cfg.Crawler.Concurrency)
	}
	if len(cfg.Crawler.Level1Sections) != 2 || cfg.Crawler.Level1Sections[1] != "Inne miejsca" {
		t.Errorf("unexpected level1 sections %q", cfg.Crawler.Level1Sections)
	}
	if len(cfg.Crawler.Level2Sections) != 1 || cfg.Crawler.Level2Sections[0] != "Zobacz" {
		t.Errorf("unexpected level2 sections %q", cfg.Crawler.Level2Sections)
	}
	if cfg.Fetcher.RequestTimeout != 30*time.Second {
		t.Errorf("default timeout lost: %s", cfg.Fetcher.RequestTimeout)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadDotEnvExportsPrefixedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	env := "VOYAGEGRAPH_TEST_DOTENV_DEPTH=3\nVOYAGEGRAPH_TEST_DOTENV_LANG=de\nUNRELATED_TEST_DOTENV=1\n"
	if err := os.WriteFile(path, []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOYAGEGRAPH_TEST_DOTENV_LANG", "fr")
	t.Cleanup(func() {
		os.Unsetenv("VOYAGEGRAPH_TEST_DOTENV_DEPTH")
		os.Unsetenv("UNRELATED_TEST_DOTENV")
	})

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("VOYAGEGRAPH_TEST_DOTENV_DEPTH"); got != "3" {
		t.Errorf("prefixed key not exported, got %q", got)
	}
	if got := os.Getenv("VOYAGEGRAPH_TEST_DOTENV_LANG"); got != "fr" {
		t.Errorf("existing variable overwritten, got %q", got)
	}
	if _, set := os.LookupEnv("UNRELATED_TEST_DOTENV"); set {
		t.Error("unprefixed key exported")
	}
	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}
