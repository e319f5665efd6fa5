package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// VOYAGEGRAPH_CRAWLER_MAX_DEPTH=2.
const EnvPrefix = "VOYAGEGRAPH"

// Load reads configuration from file, .env, and environment.
// Priority (highest to lowest): CLI flags > env vars > .env > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("voyagegraph")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".voyagegraph"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(cfg)

	return cfg, nil
}

// loadDotEnv exports VOYAGEGRAPH_* entries of a dotenv file into the
// process environment. Variables already set win.
func loadDotEnv(path string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for name, value := range env {
		if !strings.HasPrefix(name, EnvPrefix+"_") {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, value); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
	}
	return nil
}

// normalize trims list entries split from comma-separated env values.
func normalize(cfg *Config) {
	cfg.Crawler.Level1Sections = trimAll(cfg.Crawler.Level1Sections)
	cfg.Crawler.Level2Sections = trimAll(cfg.Crawler.Level2Sections)
	cfg.Crawler.Language = strings.ToLower(strings.TrimSpace(cfg.Crawler.Language))
	cfg.Crawler.BaseURL = strings.TrimRight(cfg.Crawler.BaseURL, "/")
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crawler.language", cfg.Crawler.Language)
	v.SetDefault("crawler.base_url", cfg.Crawler.BaseURL)
	v.SetDefault("crawler.max_depth", cfg.Crawler.MaxDepth)
	v.SetDefault("crawler.level1_sections", cfg.Crawler.Level1Sections)
	v.SetDefault("crawler.level2_sections", cfg.Crawler.Level2Sections)
	v.SetDefault("crawler.politeness_delay", cfg.Crawler.PolitenessDelay)
	v.SetDefault("crawler.concurrency", cfg.Crawler.Concurrency)
	v.SetDefault("crawler.country_summaries", cfg.Crawler.CountrySummaries)
	v.SetDefault("crawler.known_hierarchies", cfg.Crawler.KnownHierarchies)

	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)

	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.save_html", cfg.Storage.SaveHTML)
	v.SetDefault("storage.save_markdown", cfg.Storage.SaveMarkdown)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.timeout", cfg.Storage.Mongo.Timeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
