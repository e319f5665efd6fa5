package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const testSource = "wikivoyage_en"

func node(name string, t graph.NodeType) graph.Node {
	return graph.Node{
		ID:      graph.NodeID(testSource, name),
		Name:    name,
		Type:    t,
		QueryID: graph.QueryID(name),
		Source:  testSource,
	}
}

func edge(from, to graph.Node, t graph.EdgeType) graph.Edge {
	return graph.Edge{Source: from.ID, Target: to.ID, Type: t}
}

// --- Artifact Writer Tests ---

func TestArtifactWriterLayout(t *testing.T) {
	out := t.TempDir()
	w := NewArtifactWriter(out, "wikivoyage", true, true, testLogger)

	err := w.WritePage("europe/central_europe/poland", "poland", PageArtifacts{
		HTML:     []byte("<html></html>"),
		Markdown: "# Poland\n",
		Document: map[string]any{"query": "Poland"},
	})
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	base := filepath.Join(out, "wikivoyage", "europe", "central_europe", "poland")
	for _, rel := range []string{"html/poland.html", "markdown/poland.md", "json/poland.json"} {
		if _, err := os.Stat(filepath.Join(base, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s: %v", rel, err)
		}
	}

	data, _ := os.ReadFile(filepath.Join(base, "json", "poland.json"))
	if !strings.Contains(string(data), `"query": "Poland"`) {
		t.Errorf("json artifact = %s", data)
	}

	entries, _ := os.ReadDir(filepath.Join(base, "json"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestArtifactWriterRespectsToggles(t *testing.T) {
	out := t.TempDir()
	w := NewArtifactWriter(out, "wikivoyage", false, false, testLogger)
	if err := w.WritePage("krakow", "krakow", PageArtifacts{
		HTML:     []byte("<html></html>"),
		Markdown: "# Kraków",
		Document: map[string]string{"query": "Kraków"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(w.Dir("krakow"), "html")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("html dir should not exist, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(w.Dir("krakow"), "json", "krakow.json")); err != nil {
		t.Errorf("json artifact missing: %v", err)
	}
}

func TestWriteLocalGraphRecounts(t *testing.T) {
	w := NewArtifactWriter(t.TempDir(), "wikivoyage", true, true, testLogger)
	poland, krakow := node("Poland", graph.NodeCountry), node("Kraków", graph.NodeCity)
	g := &graph.Graph{
		Nodes:    []graph.Node{poland, krakow},
		Edges:    []graph.Edge{edge(poland, krakow, graph.EdgeContains)},
		Metadata: graph.Metadata{Source: testSource, Query: "Poland"},
	}
	if err := w.WriteLocalGraph("poland", g); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(w.Dir("poland"), "graph", "graph.json"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"node_count": 2`, `"edge_count": 1`, `"query": "Poland"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("local graph missing %s", want)
		}
	}
}

// --- Graph File Tests ---

func TestGraphFileLoadMissing(t *testing.T) {
	g, err := NewGraphFile(filepath.Join(t.TempDir(), "graph.json"), "wikivoyage", testLogger).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Errorf("expected empty graph, got %+v", g)
	}
}

func TestGraphFileMergeIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikivoyage", "graph.json")
	gf := NewGraphFile(path, "wikivoyage", testLogger)
	ctx := context.Background()

	poland, krakow := node("Poland", graph.NodeCountry), node("Kraków", graph.NodeCity)
	nodes := []graph.Node{poland, krakow}
	edges := []graph.Edge{edge(poland, krakow, graph.EdgeContains)}

	stats, err := gf.Merge(ctx, nodes, edges)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NodesAdded != 2 || stats.EdgesAdded != 1 {
		t.Errorf("first merge stats = %+v", stats)
	}
	before, _ := os.ReadFile(path)

	stats, err = gf.Merge(ctx, nodes, edges)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NodesAdded != 0 || stats.EdgesAdded != 0 {
		t.Errorf("second merge stats = %+v", stats)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("graph file changed on a repeated merge")
	}

	loaded, err := gf.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Metadata.NodeCount != 2 || loaded.Metadata.EdgeCount != 1 {
		t.Errorf("metadata = %+v", loaded.Metadata)
	}
}

func TestGraphFileKeepsExistingNodes(t *testing.T) {
	gf := NewGraphFile(filepath.Join(t.TempDir(), "graph.json"), "wikivoyage", testLogger)
	ctx := context.Background()

	first := node("Kraków", graph.NodeCity)
	if _, err := gf.Merge(ctx, []graph.Node{first}, nil); err != nil {
		t.Fatal(err)
	}
	changed := first
	changed.Type = graph.NodeAttraction
	if _, err := gf.Merge(ctx, []graph.Node{changed}, nil); err != nil {
		t.Fatal(err)
	}
	loaded, _ := gf.Load()
	if len(loaded.Nodes) != 1 || loaded.Nodes[0].Type != graph.NodeCity {
		t.Errorf("existing node overwritten: %+v", loaded.Nodes)
	}
}

func TestGraphFilePersistsPendingEdges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	gf := NewGraphFile(path, "wikivoyage", testLogger)
	ctx := context.Background()
	poland, gdansk := node("Poland", graph.NodeCountry), node("Gdańsk", graph.NodeCity)

	if _, err := gf.Merge(ctx, []graph.Node{poland, gdansk}, nil); err != nil {
		t.Fatal(err)
	}
	hel := node("Hel", graph.NodeDestination)
	stats, err := gf.Merge(ctx, nil, []graph.Edge{edge(gdansk, hel, graph.EdgeRelatedTo)})
	if err != nil {
		t.Fatal(err)
	}
	if stats.EdgesParked != 1 {
		t.Errorf("stats = %+v", stats)
	}
	loaded, _ := gf.Load()
	if len(loaded.Pending) != 1 || len(loaded.Edges) != 0 {
		t.Fatalf("pending edge not persisted: %+v", loaded)
	}

	stats, err = gf.Merge(ctx, []graph.Node{hel}, nil)
	if err != nil {
		t.Fatal(err)
	}
	loaded, _ = gf.Load()
	if stats.EdgesAdded != 1 || len(loaded.Edges) != 1 || len(loaded.Pending) != 0 {
		t.Errorf("pending edge not promoted: stats=%+v graph=%+v", stats, loaded)
	}
}

func TestGraphFileConcurrentMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	ctx := context.Background()
	names := []string{"Warsaw", "Kraków", "Gdańsk", "Wrocław", "Poznań", "Łódź", "Lublin", "Toruń"}

	// Separate instances share only the lock file, as separate runs would.
	var wg sync.WaitGroup
	errs := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			gf := NewGraphFile(path, "wikivoyage", testLogger)
			if _, err := gf.Merge(ctx, []graph.Node{node(name, graph.NodeCity)}, nil); err != nil {
				errs <- err
			}
		}(name)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("merge: %v", err)
	}

	loaded, err := NewGraphFile(path, "wikivoyage", testLogger).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Nodes) != len(names) {
		t.Errorf("expected %d nodes after concurrent merges, got %d", len(names), len(loaded.Nodes))
	}
}

func TestGraphFileCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	gf := NewGraphFile(path, "wikivoyage", testLogger)
	_, err := gf.Merge(context.Background(), []graph.Node{node("Poland", graph.NodeCountry)}, nil)
	if !errors.Is(err, types.ErrGraphCorrupted) {
		t.Fatalf("expected ErrGraphCorrupted, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Error("corrupted file was overwritten")
	}
}

// --- Multi-Sink Tests ---

type recordingSink struct {
	name   string
	err    error
	stats  graph.MergeStats
	calls  int
	closed bool
}

func (s *recordingSink) Merge(context.Context, []graph.Node, []graph.Edge) (graph.MergeStats, error) {
	s.calls++
	return s.stats, s.err
}
func (s *recordingSink) Close() error { s.closed = true; return nil }
func (s *recordingSink) Name() string { return s.name }

func TestMultiSinkFansOut(t *testing.T) {
	failing := errors.New("mirror down")
	primary := &recordingSink{name: "file", stats: graph.MergeStats{NodesAdded: 3}}
	mirror := &recordingSink{name: "mongo", err: failing}
	ms := NewMultiSink([]GraphSink{primary, mirror}, testLogger)

	stats, err := ms.Merge(context.Background(), nil, nil)
	if !errors.Is(err, failing) {
		t.Errorf("expected mirror error, got %v", err)
	}
	if stats.NodesAdded != 3 {
		t.Errorf("expected primary stats, got %+v", stats)
	}
	if primary.calls != 1 || mirror.calls != 1 {
		t.Errorf("calls = %d, %d", primary.calls, mirror.calls)
	}
	ms.Close()
	if !primary.closed || !mirror.closed {
		t.Error("sinks not closed")
	}
}

// --- Mongo Model Tests ---

func TestEdgeWriteModelsDropDangling(t *testing.T) {
	poland, krakow, ghost := node("Poland", graph.NodeCountry), node("Kraków", graph.NodeCity), node("Atlantis", graph.NodeCity)
	edges := []graph.Edge{
		edge(poland, krakow, graph.EdgeContains),
		edge(poland, krakow, graph.EdgeContains),
		edge(poland, ghost, graph.EdgeContains),
	}
	models, dangling := edgeWriteModels([]graph.Node{poland, krakow}, edges, time.Now())
	if len(models) != 1 || dangling != 1 {
		t.Fatalf("models = %d, dangling = %d", len(models), dangling)
	}
	m, ok := models[0].(*mongo.UpdateOneModel)
	if !ok {
		t.Fatalf("unexpected model type %T", models[0])
	}
	if m.Upsert == nil || !*m.Upsert {
		t.Error("edge write must upsert")
	}
	update, _ := m.Update.(bson.M)
	if _, ok := update["$setOnInsert"]; !ok {
		t.Errorf("edge write must use $setOnInsert, got %v", m.Update)
	}
	filter, _ := m.Filter.(bson.M)
	if filter["_id"] != edges[0].Key().String() {
		t.Errorf("filter = %v", m.Filter)
	}
}

func TestNodeDocument(t *testing.T) {
	n := node("Kraków", graph.NodeCity)
	n.Coordinates = &graph.Coordinates{Lat: 50.06, Lon: 19.94}
	doc := nodeDocument(n, time.Now())
	if doc["type"] != "city" || doc["query_id"] != n.QueryID {
		t.Errorf("doc = %v", doc)
	}
	if _, ok := doc["coordinates"]; !ok {
		t.Error("coordinates missing")
	}
	if len(nodeWriteModels([]graph.Node{n, n}, time.Now())) != 1 {
		t.Error("duplicate node ids should collapse")
	}
}

func TestNewGlobalSinkWithoutMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	sink, err := NewGlobalSink(context.Background(), config.StorageConfig{}, path, testSource, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if sink.Name() != "graph_file" {
		t.Errorf("expected the bare graph file, got %s", sink.Name())
	}
}

func TestNewMongoGraphUnconfigured(t *testing.T) {
	_, err := NewMongoGraph(context.Background(), config.MongoConfig{Enabled: true}, testLogger)
	if !errors.Is(err, types.ErrSinkUnconfigured) {
		t.Errorf("expected ErrSinkUnconfigured, got %v", err)
	}
}
