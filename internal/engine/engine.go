// Package engine drives the recursive crawl: it fetches a root page,
// follows links in configured sections down to a bounded depth, builds the
// node and edge sets and hands them to the graph sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/fetcher"
	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/observability"
	"github.com/IshaanNene/voyagegraph/internal/parser"
	"github.com/IshaanNene/voyagegraph/internal/storage"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

// State represents the crawler's current lifecycle state.
type State int32

const (
	StateIdle     State = 0
	StateRunning  State = 1
	StateStopping State = 2
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Stats tracks crawl statistics for one run.
type Stats struct {
	PagesFetched       atomic.Int64
	FetchFailures      atomic.Int64
	ParseFailures      atomic.Int64
	Duplicates         atomic.Int64
	CanonicalRefetches atomic.Int64
	PersistErrors      atomic.Int64
	CrossLinkEdges     atomic.Int64
	Countries          atomic.Int64
	BytesDownloaded    atomic.Int64
	StartTime          time.Time
}

func newStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	PagesFetched       int64         `json:"pages_fetched"`
	FetchFailures      int64         `json:"fetch_failures"`
	ParseFailures      int64         `json:"parse_failures"`
	Duplicates         int64         `json:"duplicates"`
	CanonicalRefetches int64         `json:"canonical_refetches"`
	PersistErrors      int64         `json:"persist_errors"`
	CrossLinkEdges     int64         `json:"cross_link_edges"`
	Countries          int64         `json:"countries"`
	BytesDownloaded    int64         `json:"bytes_downloaded"`
	Elapsed            time.Duration `json:"elapsed"`
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		PagesFetched:       s.PagesFetched.Load(),
		FetchFailures:      s.FetchFailures.Load(),
		ParseFailures:      s.ParseFailures.Load(),
		Duplicates:         s.Duplicates.Load(),
		CanonicalRefetches: s.CanonicalRefetches.Load(),
		PersistErrors:      s.PersistErrors.Load(),
		CrossLinkEdges:     s.CrossLinkEdges.Load(),
		Countries:          s.Countries.Load(),
		BytesDownloaded:    s.BytesDownloaded.Load(),
		Elapsed:            time.Since(s.StartTime),
	}
}

// LogValue renders the snapshot as a slog group.
func (s StatsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("pages_fetched", s.PagesFetched),
		slog.Int64("fetch_failures", s.FetchFailures),
		slog.Int64("duplicates", s.Duplicates),
		slog.Int64("persist_errors", s.PersistErrors),
		slog.Int64("cross_link_edges", s.CrossLinkEdges),
		slog.Int64("countries", s.Countries),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// PageSource is the upstream the crawler reads from.
type PageSource interface {
	// PageHTML returns the article body from the content API.
	PageHTML(ctx context.Context, title string) ([]byte, error)
	// CanonicalHTML returns the full rendered page, which carries breadcrumbs.
	CanonicalHTML(ctx context.Context, title string) ([]byte, error)
	// Summary returns the abstract and canonical URL of a page.
	Summary(ctx context.Context, title string) (*fetcher.Summary, error)
	// Name identifies the source in node ids, e.g. "wikivoyage_en".
	Name() string
}

// Result is everything a run produced.
type Result struct {
	RunID    string
	Root     string
	RootPath string
	Document *PageDocument
	Nodes    []graph.Node
	Edges    []graph.Edge
	Pages    []PageOutcome
	Stats    StatsSnapshot
	Merge    graph.MergeStats
	// MergeErr is set when the global sinks could not be updated. The
	// run's own artifacts are still on disk.
	MergeErr error
}

// Crawler is the recursive fetch orchestrator.
type Crawler struct {
	cfg     *config.Config
	source  PageSource
	parser  *parser.Parser
	writer  *storage.ArtifactWriter
	sink    storage.GraphSink
	hooks   []CountryHook
	metrics *observability.Metrics
	logger  *slog.Logger

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Crawler that writes under cfg.Storage.OutputPath and merges
// into the global graph file there. Country summaries are stored when
// cfg.Crawler.CountrySummaries is set.
func New(cfg *config.Config, source PageSource, logger *slog.Logger) *Crawler {
	writer := storage.NewArtifactWriter(
		cfg.Storage.OutputPath,
		fetcher.SourceFolder,
		cfg.Storage.SaveHTML,
		cfg.Storage.SaveMarkdown,
		logger,
	)
	c := &Crawler{
		cfg:    cfg,
		source: source,
		parser: parser.New(logger, parser.SiteHost(cfg.Crawler.SiteURL())),
		writer: writer,
		sink:   storage.NewGraphFile(writer.GlobalGraphPath(), source.Name(), logger),
		logger: logger.With("component", "crawler", "source", source.Name()),
	}
	if cfg.Crawler.CountrySummaries {
		c.hooks = append(c.hooks, NewSummaryHook(source, writer, logger))
	}
	return c
}

// SetSink replaces the global graph sink. A nil sink disables merging.
func (c *Crawler) SetSink(s storage.GraphSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// SetMetrics attaches metrics collectors.
func (c *Crawler) SetMetrics(m *observability.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// AddCountryHook registers a hook run once per detected country.
func (c *Crawler) AddCountryHook(h CountryHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Writer exposes the artifact writer.
func (c *Crawler) Writer() *storage.ArtifactWriter { return c.writer }

// GetState returns the current crawler state.
func (c *Crawler) GetState() State {
	return State(c.state.Load())
}

// Stop cancels the running crawl. Pages already fetched are still
// persisted and merged.
func (c *Crawler) Stop() {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	c.logger.Info("crawler stopping...")
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

// Run crawls from root. It fails only when the configuration is invalid or
// the root page cannot be fetched; every other failure is recorded on the
// Result.
func (c *Crawler) Run(ctx context.Context, root string) (*Result, error) {
	root = strings.TrimSpace(strings.ReplaceAll(root, "_", " "))
	if root == "" {
		return nil, types.ErrInvalidTitle
	}
	if err := config.Validate(c.cfg); err != nil {
		return nil, err
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("crawler is in state %s, cannot start", c.GetState())
	}
	defer c.state.Store(int32(StateIdle))

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	runID := uuid.NewString()
	c.logger.Info("crawl starting",
		"run_id", runID,
		"root", root,
		"max_depth", c.cfg.Crawler.MaxDepth,
		"level1_sections", c.cfg.Crawler.Level1Sections,
		"level2_sections", c.cfg.Crawler.Level2Sections,
		"concurrency", c.cfg.Crawler.Concurrency,
	)

	tr := newTraversal()
	res, err := c.crawlRoot(ctx, tr, root)
	if err != nil {
		c.logger.Error("root unavailable", "run_id", runID, "root", root, "error", err)
		return nil, err
	}
	res.RunID = runID
	res.Pages = tr.outcomes()
	res.Stats = tr.Stats.Snapshot()

	if errors.Is(ctx.Err(), context.Canceled) {
		c.logger.Warn("crawl cancelled, partial results kept", "run_id", runID)
	}
	c.logger.Info("crawl finished",
		"run_id", runID,
		"root", root,
		"nodes", len(res.Nodes),
		"edges", len(res.Edges),
		"stats", res.Stats,
	)
	return res, nil
}
