package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/engine"
	"github.com/IshaanNene/voyagegraph/internal/fetcher"
	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/observability"
	"github.com/IshaanNene/voyagegraph/internal/storage"
)

var (
	cfgFile          string
	verbose          bool
	outputPath       string
	depth            int
	level1           []string
	level2           []string
	lang             string
	delay            string
	concurrent       int
	mongoURI         string
	countrySummaries bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voyagegraph",
		Short: "voyagegraph - travel guide knowledge graph builder",
		Long: `voyagegraph crawls Wikivoyage from one or more root pages and builds a
typed knowledge graph of countries, regions, cities and attractions.

Each page is stored as HTML, Markdown and a structured JSON document under
<output>/wikivoyage/<breadcrumb path>/, and every run is merged into the
global graph at <output>/wikivoyage/graph.json.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [page...]",
		Short: "Crawl from one or more root pages",
		Long: `Crawl from each root page in turn, following links under the level-1
sections of the root and the level-2 sections of deeper pages.`,
		Example: `  voyagegraph crawl Poland --depth 2 --level1 Cities --level2 See,Do
  voyagegraph crawl "New Zealand" Chile --lang en --delay 2s`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawl,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().IntVarP(&depth, "depth", "d", -1, "maximum crawl depth (0 = root only)")
	cmd.Flags().StringSliceVar(&level1, "level1", nil, "sections followed on the root page")
	cmd.Flags().StringSliceVar(&level2, "level2", nil, "sections followed on deeper pages")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "wiki language edition, e.g. en")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between requests")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "sibling subtrees crawled in parallel")
	cmd.Flags().StringVar(&mongoURI, "mongo-uri", "", "also mirror the graph into MongoDB at this URI")
	cmd.Flags().BoolVar(&countrySummaries, "country-summaries", true, "store the abstract of each detected country")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyCLIOverrides(cmd, cfg); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry(), logger)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logger.Warn("metrics server failed", "error", err)
			}
		}()
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}
	defer httpFetcher.Close()
	source := fetcher.NewWikiSource(httpFetcher, &cfg.Crawler, logger)

	crawler := engine.New(cfg, source, logger)
	crawler.SetMetrics(metrics)
	sink, err := storage.NewGlobalSink(ctx, cfg.Storage, crawler.Writer().GlobalGraphPath(), source.Name(), logger)
	if err != nil {
		return fmt.Errorf("create graph sink: %w", err)
	}
	defer sink.Close()
	crawler.SetSink(sink)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			stop()
			crawler.Stop()
		case <-ctx.Done():
		}
	}()

	var failed int
	for _, root := range args {
		if ctx.Err() != nil {
			break
		}
		res, err := crawler.Run(ctx, root)
		if err != nil {
			failed++
			logger.Error("crawl failed", "root", root, "error", err)
			fmt.Printf("\n❌ %s: %v\n", root, err)
			continue
		}
		printSummary(res, crawler.Writer().Root())
	}

	if failed == len(args) {
		return fmt.Errorf("all %d root pages failed", failed)
	}
	return nil
}

func printSummary(res *engine.Result, output string) {
	s := res.Stats
	fmt.Printf("\n✅ %s crawled in %s (run %s)\n", res.Root, s.Elapsed.Round(time.Millisecond), res.RunID)
	fmt.Printf("   Pages:     %d fetched, %d failed, %d duplicates\n", s.PagesFetched, s.FetchFailures, s.Duplicates)
	fmt.Printf("   Graph:     %d nodes, %d edges (%d cross-links)\n", len(res.Nodes), len(res.Edges), s.CrossLinkEdges)
	fmt.Printf("   Merged:    +%d nodes, +%d edges\n", res.Merge.NodesAdded, res.Merge.EdgesAdded)
	if res.MergeErr != nil {
		fmt.Printf("   Merge:     failed: %v\n", res.MergeErr)
	}
	fmt.Printf("   Output:    %s\n", filepath.Join(output, res.RootPath))
}

// graphCmd groups commands that inspect the global graph.
func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Inspect the global graph",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print node and edge counts of the global graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)
			writer := storage.NewArtifactWriter(cfg.Storage.OutputPath, fetcher.SourceFolder, false, false, logger)
			g, err := storage.NewGraphFile(writer.GlobalGraphPath(), "", logger).Load()
			if err != nil {
				return err
			}
			printGraphStats(g, writer.GlobalGraphPath())
			return nil
		},
	})
	return cmd
}

func printGraphStats(g *graph.Graph, path string) {
	nodes := make(map[string]int)
	var fromBreadcrumb int
	for _, n := range g.Nodes {
		nodes[string(n.Type)]++
		if n.FromBreadcrumb {
			fromBreadcrumb++
		}
	}
	edges := make(map[string]int)
	for _, e := range g.Edges {
		edges[string(e.Type)]++
	}

	fmt.Printf("Graph: %s\n", path)
	if !g.Metadata.UpdatedAt.IsZero() {
		fmt.Printf("  Updated:  %s\n", g.Metadata.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Printf("\nNodes: %d (%d from breadcrumbs)\n", len(g.Nodes), fromBreadcrumb)
	printCounts(nodes)
	fmt.Printf("\nEdges: %d\n", len(g.Edges))
	printCounts(edges)
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k+":", counts[k])
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voyagegraph %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Crawler:\n")
			fmt.Printf("  Site:              %s\n", cfg.Crawler.SiteURL())
			fmt.Printf("  Max Depth:         %d\n", cfg.Crawler.MaxDepth)
			fmt.Printf("  Level-1 Sections:  %s\n", strings.Join(cfg.Crawler.Level1Sections, ", "))
			fmt.Printf("  Level-2 Sections:  %s\n", strings.Join(cfg.Crawler.Level2Sections, ", "))
			fmt.Printf("  Politeness Delay:  %s\n", cfg.Crawler.PolitenessDelay)
			fmt.Printf("  Concurrency:       %d\n", cfg.Crawler.Concurrency)
			fmt.Printf("  Country Summaries: %v\n", cfg.Crawler.CountrySummaries)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  User Agent:        %s\n", cfg.Fetcher.UserAgent)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  Save HTML:         %v\n", cfg.Storage.SaveHTML)
			fmt.Printf("  Save Markdown:     %v\n", cfg.Storage.SaveMarkdown)
			fmt.Printf("  MongoDB Mirror:    %v\n", cfg.Storage.Mongo.Enabled)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			if err := config.Validate(cfg); err != nil {
				fmt.Printf("\n⚠️  %v\n", err)
			}
			return nil
		},
	}
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies the flags the user actually set.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("depth") {
		cfg.Crawler.MaxDepth = depth
	}
	if flags.Changed("level1") {
		cfg.Crawler.Level1Sections = level1
	}
	if flags.Changed("level2") {
		cfg.Crawler.Level2Sections = level2
	}
	if lang != "" {
		cfg.Crawler.Language = strings.ToLower(lang)
	}
	if delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return fmt.Errorf("invalid --delay %q: %w", delay, err)
		}
		cfg.Crawler.PolitenessDelay = d
	}
	if concurrent > 0 {
		cfg.Crawler.Concurrency = concurrent
	}
	if flags.Changed("country-summaries") {
		cfg.Crawler.CountrySummaries = countrySummaries
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if mongoURI != "" {
		cfg.Storage.Mongo.Enabled = true
		cfg.Storage.Mongo.URI = mongoURI
	}
	return nil
}
