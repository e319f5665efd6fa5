package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for voyagegraph.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler" yaml:"crawler"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CrawlerConfig controls the recursive traversal.
type CrawlerConfig struct {
	// Language selects the wiki edition, e.g. "en" or "pl".
	Language string `mapstructure:"language" yaml:"language"`

	// BaseURL overrides https://<language>.wikivoyage.org when set.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// MaxDepth bounds recursion. 1 fetches only direct children of the root.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`

	// Level1Sections are searched for children of the root.
	Level1Sections []string `mapstructure:"level1_sections" yaml:"level1_sections"`

	// Level2Sections are searched for children of every deeper page.
	Level2Sections []string `mapstructure:"level2_sections" yaml:"level2_sections"`

	// PolitenessDelay is the minimum spacing between upstream requests.
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`

	// Concurrency is the number of sibling subtrees crawled in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// CountrySummaries enables the once-per-country summary fetch.
	CountrySummaries bool `mapstructure:"country_summaries" yaml:"country_summaries"`

	// KnownHierarchies maps a lowercase page name to a breadcrumb path,
	// used when a page carries no breadcrumbs at all.
	KnownHierarchies map[string]string `mapstructure:"known_hierarchies" yaml:"known_hierarchies"`
}

// FetcherConfig controls the HTTP client.
type FetcherConfig struct {
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size" yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	TLSInsecure     bool          `mapstructure:"tls_insecure" yaml:"tls_insecure"`
}

// StorageConfig controls artifact and graph persistence.
type StorageConfig struct {
	OutputPath   string      `mapstructure:"output_path" yaml:"output_path"`
	SaveHTML     bool        `mapstructure:"save_html" yaml:"save_html"`
	SaveMarkdown bool        `mapstructure:"save_markdown" yaml:"save_markdown"`
	Mongo        MongoConfig `mapstructure:"mongo" yaml:"mongo"`
}

// MongoConfig configures the optional graph mirror.
type MongoConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	URI      string        `mapstructure:"uri" yaml:"uri"`
	Database string        `mapstructure:"database" yaml:"database"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			Language:         "en",
			MaxDepth:         1,
			Level1Sections:   []string{"Cities", "Cities and towns"},
			Level2Sections:   []string{"See", "Do"},
			PolitenessDelay:  time.Second,
			Concurrency:      1,
			CountrySummaries: true,
			KnownHierarchies: map[string]string{},
		},
		Fetcher: FetcherConfig{
			UserAgent:       "TravelAssistant/1.0 (voyagegraph/" + Version + ")",
			RequestTimeout:  30 * time.Second,
			MaxBodySize:     20 * 1024 * 1024,
			MaxRedirects:    10,
			MaxIdleConns:    10,
			IdleConnTimeout: 90 * time.Second,
		},
		Storage: StorageConfig{
			OutputPath:   "./output",
			SaveHTML:     true,
			SaveMarkdown: true,
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "voyagegraph",
				Timeout:  10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// SiteURL returns the wiki origin for the configured language.
func (c *CrawlerConfig) SiteURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://" + c.Language + ".wikivoyage.org"
}
