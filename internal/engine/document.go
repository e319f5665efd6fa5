package engine

import (
	"time"

	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/parser"
)

// PageDocument is the per-page JSON artifact.
type PageDocument struct {
	Query          string                           `json:"query"`
	QueryID        string                           `json:"query_id"`
	ParentQuery    string                           `json:"parent_query"`
	ParentQueryID  string                           `json:"parent_query_id"`
	NodeType       graph.NodeType                   `json:"node_type"`
	UniqueNodeID   string                           `json:"unique_node_id"`
	Name           string                           `json:"name"`
	Description    string                           `json:"description"`
	Breadcrumbs    []parser.Breadcrumb              `json:"breadcrumbs"`
	BreadcrumbPath string                           `json:"breadcrumb_path"`
	Coordinates    *graph.Coordinates               `json:"coordinates"`
	Languages      []string                         `json:"languages"`
	History        map[string]string                `json:"history"`
	Sections       map[string]parser.SectionContent `json:"sections"`
	Metadata       DocumentMetadata                 `json:"metadata"`
	SourceURL      string                           `json:"source_url,omitempty"`
	Extract        string                           `json:"extract,omitempty"`
	FetchedAt      time.Time                        `json:"fetched_at"`
}

// DocumentMetadata lists the destinations a page names.
type DocumentMetadata struct {
	Regions           []string `json:"regions"`
	Cities            []string `json:"cities"`
	OtherDestinations []string `json:"other_destinations"`
	Sections          []string `json:"sections"`
}

func newPageDocument(query, parentQuery string, node graph.Node, page *parser.Page, chain []parser.Breadcrumb, path string) *PageDocument {
	doc := &PageDocument{
		Query:          query,
		QueryID:        node.QueryID,
		ParentQuery:    parentQuery,
		NodeType:       node.Type,
		UniqueNodeID:   node.ID,
		Name:           query,
		Description:    page.Description,
		Breadcrumbs:    nonNil(chain),
		BreadcrumbPath: path,
		Coordinates:    page.Coordinates,
		Languages:      nonNil(page.Languages),
		History:        page.History,
		Sections:       page.Sections,
		Metadata: DocumentMetadata{
			Regions:           nonNil(page.Regions),
			Cities:            nonNil(page.Cities),
			OtherDestinations: nonNil(page.OtherDestinations),
			Sections:          page.SectionKeys(),
		},
		FetchedAt: time.Now().UTC(),
	}
	if parentQuery != "" {
		doc.ParentQueryID = graph.QueryID(parentQuery)
	}
	if doc.History == nil {
		doc.History = map[string]string{}
	}
	return doc
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
