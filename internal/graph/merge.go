package graph

import (
	"slices"
	"time"
)

// MergeStats reports what a merge changed. EdgesDangling counts edges of
// the batch whose endpoints are not known yet; EdgesParked counts how many
// of those were newly added to the graph's pending list.
type MergeStats struct {
	NodesAdded    int `json:"nodes_added"`
	EdgesAdded    int `json:"edges_added"`
	EdgesDangling int `json:"edges_dangling"`
	EdgesParked   int `json:"edges_parked"`
}

// Changed reports whether the merge altered the graph.
func (s MergeStats) Changed() bool {
	return s.NodesAdded > 0 || s.EdgesAdded > 0 || s.EdgesParked > 0
}

// Merge folds nodes and edges into a copy of existing and returns it.
// Nodes are keyed by ID and edges by Key(); existing entries are never
// overwritten. Edges whose endpoints are absent from the merged node set
// are parked in Pending and promoted by a later merge that supplies the
// missing nodes, so the order in which batches are merged does not change
// the result. Counts are recomputed from the collections. Merging the same
// batch twice leaves the graph unchanged after the first merge.
func Merge(existing *Graph, nodes []Node, edges []Edge) (*Graph, MergeStats) {
	var stats MergeStats
	merged := &Graph{}
	var pending []Edge
	if existing != nil {
		merged.Metadata = existing.Metadata
		merged.Nodes = slices.Clone(existing.Nodes)
		merged.Edges = slices.Clone(existing.Edges)
		pending = existing.Pending
	}
	if merged.Nodes == nil {
		merged.Nodes = []Node{}
	}
	if merged.Edges == nil {
		merged.Edges = []Edge{}
	}

	known := make(map[string]bool, len(merged.Nodes)+len(nodes))
	for _, n := range merged.Nodes {
		known[n.ID] = true
	}
	for _, n := range nodes {
		if n.ID == "" || known[n.ID] {
			continue
		}
		known[n.ID] = true
		merged.Nodes = append(merged.Nodes, n)
		stats.NodesAdded++
	}

	seen := make(map[EdgeKey]bool, len(merged.Edges)+len(edges))
	for _, e := range merged.Edges {
		seen[e.Key()] = true
	}
	parked := make(map[EdgeKey]bool, len(pending))
	add := func(e Edge, fromBatch bool) {
		k := e.Key()
		if seen[k] {
			return
		}
		if !known[e.Source] || !known[e.Target] {
			if fromBatch {
				stats.EdgesDangling++
			}
			if !parked[k] {
				parked[k] = true
				merged.Pending = append(merged.Pending, e)
				if fromBatch {
					stats.EdgesParked++
				}
			}
			return
		}
		seen[k] = true
		merged.Edges = append(merged.Edges, e)
		stats.EdgesAdded++
	}
	for _, e := range pending {
		add(e, false)
	}
	for _, e := range edges {
		add(e, true)
	}

	merged.Recount()
	if stats.Changed() {
		merged.Metadata.UpdatedAt = time.Now().UTC()
	}
	return merged, stats
}

// Collection accumulates the nodes and edges of one run, coalescing
// repeated nodes instead of duplicating them.
type Collection struct {
	nodes []Node
	index map[string]int
	edges []Edge
	keys  map[EdgeKey]bool
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{
		index: make(map[string]int),
		keys:  make(map[EdgeKey]bool),
	}
}

// AddNode appends n, or coalesces it into the node already holding n.ID.
// A fetched node replaces a breadcrumb placeholder; otherwise section sets
// are unioned and missing coordinates filled in.
func (c *Collection) AddNode(n Node) {
	i, ok := c.index[n.ID]
	if !ok {
		c.index[n.ID] = len(c.nodes)
		c.nodes = append(c.nodes, n)
		return
	}
	cur := &c.nodes[i]
	if cur.FromBreadcrumb && !n.FromBreadcrumb {
		n.Sections = unionSorted(cur.Sections, n.Sections)
		*cur = n
		return
	}
	cur.Sections = unionSorted(cur.Sections, n.Sections)
	if cur.Coordinates == nil && n.Coordinates != nil {
		cur.Coordinates = n.Coordinates
	}
	if cur.Title == "" {
		cur.Title = n.Title
	}
}

// AddEdge appends e unless its triple is already present. It reports
// whether the edge was added.
func (c *Collection) AddEdge(e Edge) bool {
	k := e.Key()
	if c.keys[k] {
		return false
	}
	c.keys[k] = true
	c.edges = append(c.edges, e)
	return true
}

// Add appends every node and edge.
func (c *Collection) Add(nodes []Node, edges []Edge) {
	for _, n := range nodes {
		c.AddNode(n)
	}
	for _, e := range edges {
		c.AddEdge(e)
	}
}

// Nodes returns the accumulated nodes in insertion order.
func (c *Collection) Nodes() []Node { return slices.Clone(c.nodes) }

// Edges returns the accumulated edges in insertion order.
func (c *Collection) Edges() []Edge { return slices.Clone(c.edges) }

// Graph snapshots the collection as a local graph for query.
func (c *Collection) Graph(source, query string) *Graph {
	g := &Graph{
		Nodes:    c.Nodes(),
		Edges:    c.Edges(),
		Metadata: Metadata{Source: source, Query: query},
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	g.Recount()
	return g
}

func unionSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
