package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

const (
	nodesCollection = "nodes"
	edgesCollection = "edges"
)

// MongoGraph mirrors the global graph into MongoDB. Nodes are keyed by id
// and edges by their triple; both are insert-only upserts.
type MongoGraph struct {
	client  *mongo.Client
	nodes   *mongo.Collection
	edges   *mongo.Collection
	timeout time.Duration
	logger  *slog.Logger
}

// NewMongoGraph connects to the configured database.
func NewMongoGraph(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*MongoGraph, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, types.ErrSinkUnconfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(cfg.Database)
	return &MongoGraph{
		client:  client,
		nodes:   db.Collection(nodesCollection),
		edges:   db.Collection(edgesCollection),
		timeout: timeout,
		logger:  logger.With("component", "mongo_graph", "database", cfg.Database),
	}, nil
}

func (s *MongoGraph) Name() string { return "mongodb" }

// Merge upserts nodes, then the edges whose endpoints are in the batch.
func (s *MongoGraph) Merge(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (graph.MergeStats, error) {
	var stats graph.MergeStats
	ctx, cancel := context.WithTimeout(ctx, 3*s.timeout)
	defer cancel()

	now := time.Now().UTC()
	nodeModels := nodeWriteModels(nodes, now)
	if len(nodeModels) > 0 {
		res, err := s.nodes.BulkWrite(ctx, nodeModels, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return stats, &types.StorageError{Backend: s.Name(), Path: nodesCollection, Err: err}
		}
		stats.NodesAdded = int(res.UpsertedCount)
	}

	edgeModels, dangling := edgeWriteModels(nodes, edges, now)
	stats.EdgesDangling = dangling
	if len(edgeModels) > 0 {
		res, err := s.edges.BulkWrite(ctx, edgeModels, options.BulkWrite().SetOrdered(false))
		if err != nil {
			return stats, &types.StorageError{Backend: s.Name(), Path: edgesCollection, Err: err}
		}
		stats.EdgesAdded = int(res.UpsertedCount)
	}

	s.logger.Debug("graph mirrored",
		"nodes_added", stats.NodesAdded,
		"edges_added", stats.EdgesAdded,
		"edges_dangling", stats.EdgesDangling,
	)
	return stats, nil
}

func (s *MongoGraph) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func nodeDocument(n graph.Node, now time.Time) bson.M {
	doc := bson.M{
		"name":            n.Name,
		"type":            string(n.Type),
		"query_id":        n.QueryID,
		"source":          n.Source,
		"from_breadcrumb": n.FromBreadcrumb,
		"created_at":      now,
	}
	if n.Title != "" {
		doc["title"] = n.Title
	}
	if len(n.Sections) > 0 {
		doc["sections"] = n.Sections
	}
	if n.Coordinates != nil {
		doc["coordinates"] = bson.M{"lat": n.Coordinates.Lat, "lon": n.Coordinates.Lon}
	}
	return doc
}

func edgeDocument(e graph.Edge, now time.Time) bson.M {
	doc := bson.M{
		"source":     e.Source,
		"target":     e.Target,
		"type":       string(e.Type),
		"created_at": now,
	}
	if e.Section != "" {
		doc["section"] = e.Section
	}
	if len(e.Metadata) > 0 {
		doc["metadata"] = e.Metadata
	}
	return doc
}

func nodeWriteModels(nodes []graph.Node, now time.Time) []mongo.WriteModel {
	models := make([]mongo.WriteModel, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": n.ID}).
			SetUpdate(bson.M{"$setOnInsert": nodeDocument(n, now)}).
			SetUpsert(true))
	}
	return models
}

// edgeWriteModels drops edges with an endpoint outside the batch.
func edgeWriteModels(nodes []graph.Node, edges []graph.Edge, now time.Time) ([]mongo.WriteModel, int) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}
	var dangling int
	models := make([]mongo.WriteModel, 0, len(edges))
	seen := make(map[graph.EdgeKey]bool, len(edges))
	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] {
			dangling++
			continue
		}
		k := e.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": k.String()}).
			SetUpdate(bson.M{"$setOnInsert": edgeDocument(e, now)}).
			SetUpsert(true))
	}
	return models, dangling
}
