// Package voyagegraph crawls a Wikivoyage-style travel guide from a root
// page and builds a typed knowledge graph of the places it reaches.
//
// Example usage:
//
//	res, err := voyagegraph.Ingest(ctx, "Poland",
//	    voyagegraph.WithMaxDepth(2),
//	    voyagegraph.WithLevel1Sections("Cities", "Regions"),
//	    voyagegraph.WithLevel2Sections("See", "Do"),
//	    voyagegraph.WithOutputDir("./output"),
//	)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(len(res.Nodes), "nodes,", len(res.Edges), "edges")
package voyagegraph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/engine"
	"github.com/IshaanNene/voyagegraph/internal/fetcher"
	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/storage"
)

// Re-exported result types.
type (
	Result       = engine.Result
	PageDocument = engine.PageDocument
	PageOutcome  = engine.PageOutcome
	Node         = graph.Node
	Edge         = graph.Edge
	CountryInfo  = engine.CountryInfo
)

// CountryHook runs once per country detected during a crawl.
type CountryHook func(ctx context.Context, info CountryInfo) error

type settings struct {
	cfg    *config.Config
	logger *slog.Logger
	hooks  []CountryHook
}

// Option configures Ingest.
type Option func(*settings)

// WithConfig starts from cfg instead of the defaults. Options applied
// after it still override its fields.
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) {
		c := *cfg
		s.cfg = &c
	}
}

// WithMaxDepth bounds recursion. 0 fetches only the root, 1 its direct
// children.
func WithMaxDepth(depth int) Option {
	return func(s *settings) { s.cfg.Crawler.MaxDepth = depth }
}

// WithLevel1Sections sets the sections searched for children of the root.
func WithLevel1Sections(sections ...string) Option {
	return func(s *settings) { s.cfg.Crawler.Level1Sections = sections }
}

// WithLevel2Sections sets the sections searched for children of deeper pages.
func WithLevel2Sections(sections ...string) Option {
	return func(s *settings) { s.cfg.Crawler.Level2Sections = sections }
}

// WithOutputDir sets where artifacts and the global graph are written.
func WithOutputDir(dir string) Option {
	return func(s *settings) { s.cfg.Storage.OutputPath = dir }
}

// WithLanguage selects the wiki edition, e.g. "en" or "pl".
func WithLanguage(lang string) Option {
	return func(s *settings) { s.cfg.Crawler.Language = strings.ToLower(lang) }
}

// WithBaseURL points the crawler at another host serving the same API.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.cfg.Crawler.BaseURL = strings.TrimRight(u, "/") }
}

// WithDelay sets the politeness delay between requests.
func WithDelay(d time.Duration) Option {
	return func(s *settings) { s.cfg.Crawler.PolitenessDelay = d }
}

// WithConcurrency sets how many sibling subtrees are crawled in parallel.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.cfg.Crawler.Concurrency = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithCountrySummaries stores each detected country's abstract.
func WithCountrySummaries(enabled bool) Option {
	return func(s *settings) { s.cfg.Crawler.CountrySummaries = enabled }
}

// WithCountryHook registers a hook run once per detected country.
func WithCountryHook(h CountryHook) Option {
	return func(s *settings) { s.hooks = append(s.hooks, h) }
}

// Ingest crawls from root and returns every node and edge reachable within
// the configured depth, plus the root's own page document. Artifacts and
// the merged global graph are written under the output directory.
//
// The error is non-nil only for an invalid configuration or an unreachable
// root; failures below the root are reported in Result.Pages.
func Ingest(ctx context.Context, root string, opts ...Option) (*Result, error) {
	s := &settings{
		cfg:    config.DefaultConfig(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := config.Validate(s.cfg); err != nil {
		return nil, err
	}

	f, err := fetcher.NewHTTPFetcher(s.cfg, nil, s.logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	defer f.Close()
	source := fetcher.NewWikiSource(f, &s.cfg.Crawler, s.logger)

	crawler := engine.New(s.cfg, source, s.logger)
	sink, err := storage.NewGlobalSink(ctx, s.cfg.Storage, crawler.Writer().GlobalGraphPath(), source.Name(), s.logger)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	crawler.SetSink(sink)
	for _, h := range s.hooks {
		crawler.AddCountryHook(engine.CountryHookFunc(h))
	}

	return crawler.Run(ctx, root)
}
