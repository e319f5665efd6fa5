package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/storage"
)

// CountryInfo describes a country detected during a run.
type CountryInfo struct {
	Name string
	// Folder is the country's page folder, relative to the source folder.
	Folder string
	Source string
}

// CountryHook runs auxiliary work once per detected country per run.
// Errors are logged and never stop the traversal.
type CountryHook interface {
	OnCountry(ctx context.Context, info CountryInfo) error
}

// CountryHookFunc adapts a function to CountryHook.
type CountryHookFunc func(ctx context.Context, info CountryInfo) error

func (f CountryHookFunc) OnCountry(ctx context.Context, info CountryInfo) error { return f(ctx, info) }

// CountrySummary is the document written by SummaryHook.
type CountrySummary struct {
	Country   string    `json:"country"`
	Title     string    `json:"title"`
	Extract   string    `json:"extract"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SummaryHook fetches a country's abstract and stores it under
// <country folder>/summary/<slug>.json.
type SummaryHook struct {
	source PageSource
	writer *storage.ArtifactWriter
	logger *slog.Logger
}

// NewSummaryHook creates a SummaryHook.
func NewSummaryHook(source PageSource, writer *storage.ArtifactWriter, logger *slog.Logger) *SummaryHook {
	return &SummaryHook{
		source: source,
		writer: writer,
		logger: logger.With("component", "country_summary"),
	}
}

func (h *SummaryHook) OnCountry(ctx context.Context, info CountryInfo) error {
	sum, err := h.source.Summary(ctx, info.Name)
	if err != nil {
		return err
	}
	doc := CountrySummary{
		Country:   info.Name,
		Title:     sum.Title,
		Extract:   sum.Extract,
		SourceURL: sum.URL,
		FetchedAt: time.Now().UTC(),
	}
	if err := h.writer.WriteSummary(info.Folder, graph.Slug(info.Name), doc); err != nil {
		return err
	}
	h.logger.Info("country summary stored", "country", info.Name, "folder", info.Folder)
	return nil
}
