// Package storage persists crawl artifacts and the global knowledge graph.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/graph"
)

// GraphSink is a durable home for the global graph.
type GraphSink interface {
	// Merge folds a run's nodes and edges into the sink. Merging the same
	// batch twice must leave the sink unchanged.
	Merge(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (graph.MergeStats, error)

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink identifier.
	Name() string
}

// --- Multi-Sink Fan-Out ---

// MultiSink merges into several sinks in order. The first sink is the
// primary one and its stats are reported.
type MultiSink struct {
	sinks  []GraphSink
	logger *slog.Logger
}

// NewMultiSink creates a sink that fans out to sinks.
func NewMultiSink(sinks []GraphSink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

func (s *MultiSink) Merge(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (graph.MergeStats, error) {
	var (
		primary  graph.MergeStats
		firstErr error
	)
	for i, sink := range s.sinks {
		stats, err := sink.Merge(ctx, nodes, edges)
		if err != nil {
			s.logger.Error("sink merge failed", "sink", sink.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if i == 0 {
			primary = stats
		}
		s.logger.Debug("sink merged",
			"sink", sink.Name(),
			"nodes_added", stats.NodesAdded,
			"edges_added", stats.EdgesAdded,
		)
	}
	return primary, firstErr
}

func (s *MultiSink) Close() error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewGlobalSink opens the global graph file at path, fanned out to a
// MongoDB mirror when cfg.Mongo.Enabled.
func NewGlobalSink(ctx context.Context, cfg config.StorageConfig, path, source string, logger *slog.Logger) (GraphSink, error) {
	file := NewGraphFile(path, source, logger)
	if !cfg.Mongo.Enabled {
		return file, nil
	}
	mirror, err := NewMongoGraph(ctx, cfg.Mongo, logger)
	if err != nil {
		return nil, fmt.Errorf("open graph mirror: %w", err)
	}
	return NewMultiSink([]GraphSink{file, mirror}, logger), nil
}
