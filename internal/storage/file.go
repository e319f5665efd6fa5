package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

// Artifact subdirectories inside a page folder.
const (
	HTMLDir     = "html"
	MarkdownDir = "markdown"
	JSONDir     = "json"
	GraphDir    = "graph"
	SummaryDir  = "summary"

	GraphFileName = "graph.json"
)

// --- Page Artifacts ---

// PageArtifacts is what gets written for one fetched page.
type PageArtifacts struct {
	HTML     []byte
	Markdown string
	Document any
}

// ArtifactWriter lays out per-page files under <output>/<source folder>.
type ArtifactWriter struct {
	root         string
	saveHTML     bool
	saveMarkdown bool
	logger       *slog.Logger
}

// NewArtifactWriter creates a writer rooted at outputDir/sourceFolder.
func NewArtifactWriter(outputDir, sourceFolder string, saveHTML, saveMarkdown bool, logger *slog.Logger) *ArtifactWriter {
	return &ArtifactWriter{
		root:         filepath.Join(outputDir, sourceFolder),
		saveHTML:     saveHTML,
		saveMarkdown: saveMarkdown,
		logger:       logger.With("component", "artifact_writer"),
	}
}

// Root is the source folder all page folders live under.
func (w *ArtifactWriter) Root() string { return w.root }

// Dir resolves a slash-separated page folder path.
func (w *ArtifactWriter) Dir(path string) string {
	return filepath.Join(w.root, filepath.FromSlash(path))
}

// GlobalGraphPath is the location of the global graph file.
func (w *ArtifactWriter) GlobalGraphPath() string {
	return filepath.Join(w.root, GraphFileName)
}

// WritePage writes the html, markdown and json artifacts of a page. All
// three are attempted; the first failure is returned.
func (w *ArtifactWriter) WritePage(path, slug string, a PageArtifacts) error {
	dir := w.Dir(path)
	var errs []error
	if w.saveHTML && len(a.HTML) > 0 {
		errs = append(errs, writeFileAtomic(filepath.Join(dir, HTMLDir, slug+".html"), a.HTML))
	}
	if w.saveMarkdown && a.Markdown != "" {
		errs = append(errs, writeFileAtomic(filepath.Join(dir, MarkdownDir, slug+".md"), []byte(a.Markdown)))
	}
	if a.Document != nil {
		errs = append(errs, writeJSON(filepath.Join(dir, JSONDir, slug+".json"), a.Document))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	w.logger.Debug("page artifacts written", "dir", dir, "slug", slug)
	return nil
}

// WriteLocalGraph writes graph/graph.json inside a page folder.
func (w *ArtifactWriter) WriteLocalGraph(path string, g *graph.Graph) error {
	g.Recount()
	target := filepath.Join(w.Dir(path), GraphDir, GraphFileName)
	if err := writeJSON(target, g); err != nil {
		return err
	}
	w.logger.Info("local graph written",
		"path", target,
		"nodes", g.Metadata.NodeCount,
		"edges", g.Metadata.EdgeCount,
	)
	return nil
}

// WriteSummary writes summary/<slug>.json inside a page folder.
func (w *ArtifactWriter) WriteSummary(path, slug string, v any) error {
	return writeJSON(filepath.Join(w.Dir(path), SummaryDir, slug+".json"), v)
}

// --- Global Graph File ---

// GraphFile is the global graph stored as a single JSON document. Merges
// are serialized by a process-local mutex plus a lock file, so concurrent
// runs never lose each other's additions.
type GraphFile struct {
	path   string
	source string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *slog.Logger
}

// NewGraphFile creates a sink backed by path.
func NewGraphFile(path, source string, logger *slog.Logger) *GraphFile {
	return &GraphFile{
		path:   path,
		source: source,
		lock:   flock.New(path + ".lock"),
		logger: logger.With("component", "graph_file"),
	}
}

func (g *GraphFile) Name() string { return "graph_file" }

// Path is the location of the graph document.
func (g *GraphFile) Path() string { return g.path }

// Load reads the graph. A missing file yields an empty graph.
func (g *GraphFile) Load() (*graph.Graph, error) {
	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return graph.New(g.source), nil
	}
	if err != nil {
		return nil, &types.StorageError{Backend: g.Name(), Path: g.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return graph.New(g.source), nil
	}
	var out graph.Graph
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &types.StorageError{
			Backend: g.Name(),
			Path:    g.path,
			Err:     fmt.Errorf("%w: %v", types.ErrGraphCorrupted, err),
		}
	}
	if out.Nodes == nil {
		out.Nodes = []graph.Node{}
	}
	if out.Edges == nil {
		out.Edges = []graph.Edge{}
	}
	return &out, nil
}

// Merge performs the read-modify-write of the global graph under both
// locks. An unchanged graph is not rewritten.
func (g *GraphFile) Merge(ctx context.Context, nodes []graph.Node, edges []graph.Edge) (graph.MergeStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return graph.MergeStats{}, &types.StorageError{Backend: g.Name(), Path: g.path, Err: err}
	}
	locked, err := g.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return graph.MergeStats{}, &types.StorageError{Backend: g.Name(), Path: g.lock.Path(), Err: err}
	}
	if !locked {
		return graph.MergeStats{}, &types.StorageError{Backend: g.Name(), Path: g.lock.Path(), Err: errors.New("lock not acquired")}
	}
	defer g.lock.Unlock()

	existing, err := g.Load()
	if err != nil {
		return graph.MergeStats{}, err
	}
	_, statErr := os.Stat(g.path)
	merged, stats := graph.Merge(existing, nodes, edges)
	if merged.Metadata.Source == "" {
		merged.Metadata.Source = g.source
	}

	if !stats.Changed() && statErr == nil {
		g.logger.Debug("global graph unchanged", "path", g.path)
		return stats, nil
	}
	if err := writeJSON(g.path, merged); err != nil {
		return stats, err
	}

	g.logger.Info("global graph merged",
		"path", g.path,
		"nodes_added", stats.NodesAdded,
		"edges_added", stats.EdgesAdded,
		"edges_dangling", stats.EdgesDangling,
		"edges_pending", len(merged.Pending),
		"nodes", merged.Metadata.NodeCount,
		"edges", merged.Metadata.EdgeCount,
	)
	return stats, nil
}

func (g *GraphFile) Close() error { return nil }

// --- Atomic Writes ---

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return &types.StorageError{Backend: "file", Path: path, Err: fmt.Errorf("encode JSON: %w", err)}
	}
	return writeFileAtomic(path, buf.Bytes())
}

// writeFileAtomic writes to a temp file in the target directory, then
// renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.StorageError{Backend: "file", Path: path, Err: fmt.Errorf("create dir: %w", err)}
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &types.StorageError{Backend: "file", Path: path, Err: err}
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &types.StorageError{Backend: "file", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return &types.StorageError{Backend: "file", Path: path, Err: err}
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return &types.StorageError{Backend: "file", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &types.StorageError{Backend: "file", Path: path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}
