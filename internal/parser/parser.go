// Package parser reads travel-guide wiki pages: sections, child links,
// breadcrumbs, coordinates and a markdown rendering.
package parser

import (
	"bytes"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

// Page is the parse result of one article.
type Page struct {
	Title       string
	Sections    map[string]SectionContent
	Description string
	Coordinates *graph.Coordinates
	Breadcrumbs []Breadcrumb
	Languages   []string
	History     map[string]string

	Regions           []string
	Cities            []string
	OtherDestinations []string

	doc       *goquery.Document
	siteHosts []string
}

// SectionKeys returns the sorted keys of the non-empty sections.
func (p *Page) SectionKeys() []string {
	keys := make([]string, 0, len(p.Sections))
	for k := range p.Sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Features is the classifier input for this page.
func (p *Page) Features() graph.Features {
	return graph.NewFeatures(p.SectionKeys(), p.Coordinates != nil)
}

// Links returns the child links found under sections.
func (p *Page) Links(sections []string) []Link {
	return ExtractLinksFromSections(p.doc.Selection, sections, p.siteHosts...)
}

// Markdown renders the main content as markdown.
func (p *Page) Markdown() (string, error) {
	return RenderMarkdown(p.doc, p.Title)
}

// Document exposes the parsed DOM.
func (p *Page) Document() *goquery.Document { return p.doc }

// Parser turns raw HTML into Pages.
type Parser struct {
	siteHosts []string
	logger    *slog.Logger
}

// New creates a Parser. Absolute links count as internal only when they
// point at one of siteHosts.
func New(logger *slog.Logger, siteHosts ...string) *Parser {
	var hosts []string
	for _, h := range siteHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Parser{siteHosts: hosts, logger: logger.With("component", "parser")}
}

// Parse reads an article body fetched for title.
func (p *Parser) Parse(title string, body []byte) (*Page, error) {
	doc, err := parseDocument(title, body)
	if err != nil {
		return nil, err
	}

	root := doc.Selection
	page := &Page{
		Title:             title,
		Sections:          ExtractAllSections(root),
		Description:       extractDescription(doc),
		Coordinates:       ExtractCoordinates(doc, body),
		Breadcrumbs:       ExtractBreadcrumbs(doc),
		Regions:           ExtractListItems(root, "Regions"),
		Cities:            ExtractListItems(root, "Cities"),
		OtherDestinations: ExtractListItems(root, "Other destinations"),
		doc:               doc,
		siteHosts:         p.siteHosts,
	}
	if talk, ok := page.Sections[SectionKey("Talk")]; ok {
		page.Languages = ExtractLanguages(talk.Text)
	}
	page.History = ExtractSubsections(root, "History")
	if page.History == nil {
		if h := ExtractSection(root, "History"); !h.IsEmpty() {
			page.History = map[string]string{"History": h.Text}
		}
	}

	p.logger.Debug("page parsed",
		"title", title,
		"sections", len(page.Sections),
		"breadcrumbs", len(page.Breadcrumbs),
		"has_coordinates", page.Coordinates != nil,
	)
	return page, nil
}

// ParseBreadcrumbs reads only the breadcrumb trail, for the canonical page
// re-fetch.
func (p *Parser) ParseBreadcrumbs(title string, body []byte) ([]Breadcrumb, error) {
	doc, err := parseDocument(title, body)
	if err != nil {
		return nil, err
	}
	return ExtractBreadcrumbs(doc), nil
}

func parseDocument(title string, body []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &types.ParseError{Page: title, Stage: "document", Err: types.ErrEmptyResponse}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &types.ParseError{Page: title, Stage: "document", Err: err}
	}
	return doc, nil
}

// The lead paragraph is the first one long enough to be prose rather than
// a caption or coordinates line.
const minDescriptionLength = 40

func extractDescription(doc *goquery.Document) string {
	main := MainContent(doc)
	if main == nil {
		return ""
	}
	var first, lead string
	main.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := cleanText(s.Text())
		if text == "" {
			return true
		}
		if first == "" {
			first = text
		}
		if len(text) >= minDescriptionLength {
			lead = text
			return false
		}
		return true
	})
	if lead != "" {
		return lead
	}
	return first
}
