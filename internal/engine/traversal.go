package engine

import (
	"sync"

	"github.com/IshaanNene/voyagegraph/internal/graph"
)

// crossLink is a link to a page that another parent already claimed.
type crossLink struct {
	parent  graph.Node
	child   string
	section string
}

// Traversal is the state shared by every page of one run. It is passed
// down the recursion explicitly and is safe for concurrent use.
type Traversal struct {
	Visited *VisitedSet
	Stats   *Stats

	mu         sync.Mutex
	countries  map[string]bool
	nodes      map[string]graph.Node
	crossLinks []crossLink
	pages      []PageOutcome
}

func newTraversal() *Traversal {
	return &Traversal{
		Visited:   NewVisitedSet(256),
		Stats:     newStats(),
		countries: make(map[string]bool),
		nodes:     make(map[string]graph.Node),
	}
}

// markCountry reports whether country is seen for the first time this run.
func (t *Traversal) markCountry(country string) bool {
	key := graph.NormalizeName(country)
	t.mu.Lock()
	defer t.mu.Unlock()
	if key == "" || t.countries[key] {
		return false
	}
	t.countries[key] = true
	return true
}

// register indexes a fetched page's node by its page name.
func (t *Traversal) register(name string, n graph.Node) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[graph.NormalizeName(name)] = n
}

func (t *Traversal) addCrossLink(parent graph.Node, child, section string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.crossLinks = append(t.crossLinks, crossLink{parent: parent, child: child, section: section})
}

func (t *Traversal) record(o PageOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages = append(t.pages, o)
}

func (t *Traversal) outcomes() []PageOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PageOutcome, len(t.pages))
	copy(out, t.pages)
	return out
}

// crossLinkEdges turns the deferred links into edges. A link is dropped if
// its page never produced a node or it points back at its parent.
func (t *Traversal) crossLinkEdges() []graph.Edge {
	t.mu.Lock()
	defer t.mu.Unlock()
	var edges []graph.Edge
	for _, cl := range t.crossLinks {
		child, ok := t.nodes[graph.NormalizeName(cl.child)]
		if !ok || child.ID == cl.parent.ID {
			continue
		}
		edges = append(edges, graph.Edge{
			Source:   cl.parent.ID,
			Target:   child.ID,
			Type:     graph.ClassifyRelationship(cl.parent.Type, child.Type, cl.section),
			Section:  cl.section,
			Metadata: map[string]string{"cross_link": "true"},
		})
	}
	return edges
}
