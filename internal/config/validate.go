package config

import (
	"fmt"
	"net/url"

	"github.com/IshaanNene/voyagegraph/internal/types"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Crawler.Language == "" && cfg.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.language or crawler.base_url is required")
	}
	if cfg.Crawler.BaseURL != "" {
		u, err := url.Parse(cfg.Crawler.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid crawler.base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("crawler.base_url scheme must be http or https, got %q", u.Scheme)
		}
	}
	if cfg.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0, got %d", cfg.Crawler.MaxDepth)
	}
	if cfg.Crawler.MaxDepth > 0 && len(cfg.Crawler.Level1Sections) == 0 {
		return fmt.Errorf("crawler.level1_sections must not be empty when max_depth > 0")
	}
	if cfg.Crawler.MaxDepth > 1 && len(cfg.Crawler.Level2Sections) == 0 {
		return fmt.Errorf("crawler.level2_sections must not be empty when max_depth > 1")
	}
	if cfg.Crawler.PolitenessDelay < 0 {
		return fmt.Errorf("crawler.politeness_delay must be >= 0")
	}
	if cfg.Crawler.Concurrency < 1 || cfg.Crawler.Concurrency > 64 {
		return fmt.Errorf("crawler.concurrency must be 1-64, got %d", cfg.Crawler.Concurrency)
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path is required")
	}
	if cfg.Storage.Mongo.Enabled {
		if cfg.Storage.Mongo.URI == "" || cfg.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.uri and storage.mongo.database are required when mongo is enabled")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}
