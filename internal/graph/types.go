// Package graph holds the travel knowledge graph model: typed nodes and
// edges, node identity, the heuristic classifiers and the idempotent merge.
package graph

import (
	"fmt"
	"time"
)

// NodeType is the semantic classification of a page.
type NodeType string

const (
	NodeCountry     NodeType = "country"
	NodeRegion      NodeType = "region"
	NodeCity        NodeType = "city"
	NodeDestination NodeType = "destination"
	NodeAttraction  NodeType = "attraction"
)

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeCountry, NodeRegion, NodeCity, NodeDestination, NodeAttraction:
		return true
	default:
		return false
	}
}

// ParseNodeType converts a persisted string back into a NodeType.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown node type %q", s)
	}
	return t, nil
}

// EdgeType is the semantic classification of a parent/child relationship.
type EdgeType string

const (
	EdgeContains  EdgeType = "contains"
	EdgePartOf    EdgeType = "part_of"
	EdgeLocatedIn EdgeType = "located_in"
	EdgeRelatedTo EdgeType = "related_to"
)

// Valid reports whether t is one of the known edge types.
func (t EdgeType) Valid() bool {
	switch t {
	case EdgeContains, EdgePartOf, EdgeLocatedIn, EdgeRelatedTo:
		return true
	default:
		return false
	}
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Node is one page in the graph. ID is stable across runs.
type Node struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Title          string       `json:"title,omitempty"`
	Type           NodeType     `json:"type"`
	QueryID        string       `json:"query_id"`
	Source         string       `json:"source"`
	Coordinates    *Coordinates `json:"coordinates,omitempty"`
	Sections       []string     `json:"sections,omitempty"`
	FromBreadcrumb bool         `json:"from_breadcrumb,omitempty"`
}

// Edge is a directed, typed relationship. Its identity is Key().
type Edge struct {
	Source   string            `json:"source"`
	Target   string            `json:"target"`
	Type     EdgeType          `json:"type"`
	Section  string            `json:"section,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EdgeKey identifies an edge by its (source, target, type) triple.
type EdgeKey struct {
	Source string
	Target string
	Type   EdgeType
}

// Key returns the identity triple of e.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Type: e.Type}
}

// String renders the key as "source|target|type".
func (k EdgeKey) String() string {
	return k.Source + "|" + k.Target + "|" + string(k.Type)
}

// Metadata describes a persisted graph.
type Metadata struct {
	Source    string    `json:"source"`
	Query     string    `json:"query,omitempty"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Graph is the on-disk shape of both local and global graphs. Pending
// holds edges whose endpoints have not been merged yet; they are not
// counted in Metadata.
type Graph struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Pending  []Edge   `json:"pending_edges,omitempty"`
	Metadata Metadata `json:"metadata"`
}

// New returns an empty graph for source.
func New(source string) *Graph {
	return &Graph{
		Nodes:    []Node{},
		Edges:    []Edge{},
		Metadata: Metadata{Source: source},
	}
}

// Recount sets the metadata counts from the collections.
func (g *Graph) Recount() {
	g.Metadata.NodeCount = len(g.Nodes)
	g.Metadata.EdgeCount = len(g.Edges)
}
