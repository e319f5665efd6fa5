package main

import (
	"testing"
	"time"

	"github.com/IshaanNene/voyagegraph/internal/config"
)

func TestApplyCLIOverrides(t *testing.T) {
	cmd := crawlCmd()
	if err := cmd.ParseFlags([]string{
		"--depth", "0",
		"--level1", "Regions,Cities",
		"--lang", "PL",
		"--delay", "250ms",
		"--mongo-uri", "mongodb://db:27017",
	}); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	if err := applyCLIOverrides(cmd, cfg); err != nil {
		t.Fatal(err)
	}

	if cfg.Crawler.MaxDepth != 0 {
		t.Errorf("MaxDepth = %d, want 0", cfg.Crawler.MaxDepth)
	}
	if len(cfg.Crawler.Level1Sections) != 2 || cfg.Crawler.Level1Sections[0] != "Regions" {
		t.Errorf("Level1Sections = %v", cfg.Crawler.Level1Sections)
	}
	if len(cfg.Crawler.Level2Sections) != 2 {
		t.Errorf("unset --level2 should keep defaults, got %v", cfg.Crawler.Level2Sections)
	}
	if cfg.Crawler.Language != "pl" {
		t.Errorf("Language = %q", cfg.Crawler.Language)
	}
	if cfg.Crawler.PolitenessDelay != 250*time.Millisecond {
		t.Errorf("PolitenessDelay = %s", cfg.Crawler.PolitenessDelay)
	}
	if !cfg.Storage.Mongo.Enabled || cfg.Storage.Mongo.URI != "mongodb://db:27017" {
		t.Errorf("Mongo = %+v", cfg.Storage.Mongo)
	}
	if !cfg.Crawler.CountrySummaries {
		t.Error("unset --country-summaries should keep the default")
	}
}

func TestApplyCLIOverridesBadDelay(t *testing.T) {
	cmd := crawlCmd()
	if err := cmd.ParseFlags([]string{"--delay", "soon"}); err != nil {
		t.Fatal(err)
	}
	if err := applyCLIOverrides(cmd, config.DefaultConfig()); err == nil {
		t.Fatal("expected error for unparseable delay")
	}
}
