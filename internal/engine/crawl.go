package engine

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/voyagegraph/internal/graph"
	"github.com/IshaanNene/voyagegraph/internal/parser"
	"github.com/IshaanNene/voyagegraph/internal/storage"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

// parentContext is what a child needs to know about the page linking it.
type parentContext struct {
	node  graph.Node
	query string
	path  string
}

// pageResult is a fetched page and everything found beneath it.
type pageResult struct {
	nodes []graph.Node
	edges []graph.Edge
}

// crawlRoot processes the root page and the traversal below it.
func (c *Crawler) crawlRoot(ctx context.Context, tr *Traversal, root string) (*Result, error) {
	outcome := PageOutcome{Query: root, QueryID: graph.QueryID(root), State: PagePending}
	tr.Visited.MarkIfNew(root)
	c.metrics.SetVisited(tr.Visited.Count())

	summary, err := c.source.Summary(ctx, root)
	if err != nil {
		c.logger.Warn("root summary unavailable", "root", root, "error", err)
	}

	outcome.State = PageFetching
	body, err := c.source.PageHTML(ctx, root)
	tr.Stats.PagesFetched.Add(1)
	if err != nil {
		tr.Stats.FetchFailures.Add(1)
		c.metrics.PageDone(PageSkipped.String())
		return nil, fmt.Errorf("%w: %s: %w", types.ErrRootUnavailable, root, err)
	}
	tr.Stats.BytesDownloaded.Add(int64(len(body)))

	page, err := c.parser.Parse(root, body)
	if err != nil {
		tr.Stats.ParseFailures.Add(1)
		c.metrics.PageDone(PageSkipped.String())
		return nil, fmt.Errorf("%w: %s: %w", types.ErrRootUnavailable, root, err)
	}
	outcome.State = PageParsed

	chain := c.resolveBreadcrumbs(ctx, tr, root, page)
	node := c.newNode(root, page)
	outcome.NodeID = node.ID
	tr.register(root, node)

	rootPath := folderPath(chain, root, "")
	coll := graph.NewCollection()
	coll.AddNode(node)
	ancestorNodes, ancestorEdges := breadcrumbGraph(c.source.Name(), chain, root, node)
	coll.Add(ancestorNodes, ancestorEdges)

	c.detectCountry(ctx, tr, chain, root, node.Type, rootPath)

	doc := newPageDocument(root, "", node, page, chain, rootPath)
	if summary != nil {
		doc.SourceURL = summary.URL
		doc.Extract = summary.Extract
	}
	persistErr := c.persistPage(tr, rootPath, root, body, page, doc)

	if c.cfg.Crawler.MaxDepth > 0 {
		outcome.State = PageChildrenScheduled
		links := page.Links(c.cfg.Crawler.Level1Sections)
		c.logger.Info("root links discovered", "root", root, "links", len(links))
		parent := parentContext{node: node, query: root, path: rootPath}
		below := c.fetchRecursive(ctx, tr, links, c.cfg.Crawler.Level2Sections, 0, parent)
		coll.Add(below.nodes, below.edges)
	} else {
		outcome.State = PageLeaf
	}

	for _, e := range tr.crossLinkEdges() {
		if coll.AddEdge(e) {
			tr.Stats.CrossLinkEdges.Add(1)
		}
	}

	local := coll.Graph(c.source.Name(), root)
	if err := c.writer.WriteLocalGraph(rootPath, local); err != nil && persistErr == nil {
		persistErr = err
		tr.Stats.PersistErrors.Add(1)
		c.metrics.PersistFailed()
	}
	c.finish(tr, &outcome, persistErr)

	res := &Result{
		Root:     root,
		RootPath: rootPath,
		Document: doc,
		Nodes:    local.Nodes,
		Edges:    local.Edges,
	}

	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		// A cancelled crawl still merges what it found.
		stats, err := sink.Merge(context.WithoutCancel(ctx), res.Nodes, res.Edges)
		res.Merge = stats
		res.MergeErr = err
		if err != nil {
			c.logger.Error("global graph merge failed", "sink", sink.Name(), "error", err)
		} else {
			c.metrics.Merged(stats.NodesAdded, stats.EdgesAdded, stats.EdgesDangling)
		}
	}
	return res, nil
}

// fetchRecursive visits links in order, or in parallel sibling subtrees
// when concurrency allows. Results keep link order either way.
func (c *Crawler) fetchRecursive(ctx context.Context, tr *Traversal, links []parser.Link, sections []string, depth int, parent parentContext) pageResult {
	results := make([]pageResult, len(links))
	limit := c.cfg.Crawler.Concurrency

	if limit <= 1 {
		for i, link := range links {
			results[i] = c.processChild(ctx, tr, link, sections, depth, parent)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(limit)
		for i, link := range links {
			g.Go(func() error {
				results[i] = c.processChild(gctx, tr, link, sections, depth, parent)
				return nil
			})
		}
		g.Wait()
	}

	var out pageResult
	for _, r := range results {
		out.nodes = append(out.nodes, r.nodes...)
		out.edges = append(out.edges, r.edges...)
	}
	return out
}

// processChild runs one page through its state machine.
func (c *Crawler) processChild(ctx context.Context, tr *Traversal, link parser.Link, sections []string, depth int, parent parentContext) pageResult {
	title := link.Title()
	outcome := PageOutcome{
		Query:   title,
		QueryID: graph.QueryID(title),
		Parent:  parent.query,
		Section: link.Section,
		Depth:   depth + 1,
		State:   PagePending,
	}
	logger := c.logger.With("page", title, "parent", parent.query, "depth", depth+1)

	if ctx.Err() != nil {
		c.skip(tr, &outcome, ReasonCancelled, fmt.Errorf("%w: %w", types.ErrCrawlStopped, ctx.Err()))
		return pageResult{}
	}
	if !tr.Visited.MarkIfNew(title) {
		tr.Stats.Duplicates.Add(1)
		tr.addCrossLink(parent.node, title, link.Section)
		c.skip(tr, &outcome, ReasonDuplicate, nil)
		logger.Debug("already visited")
		return pageResult{}
	}
	c.metrics.SetVisited(tr.Visited.Count())

	outcome.State = PageFetching
	body, err := c.source.PageHTML(ctx, title)
	tr.Stats.PagesFetched.Add(1)
	if err != nil {
		tr.Stats.FetchFailures.Add(1)
		logger.Warn("fetch failed, skipping", "error", err)
		c.skip(tr, &outcome, ReasonFetchFailed, err)
		return pageResult{}
	}
	tr.Stats.BytesDownloaded.Add(int64(len(body)))

	page, err := c.parser.Parse(title, body)
	if err != nil {
		tr.Stats.ParseFailures.Add(1)
		logger.Warn("parse failed, skipping", "error", err)
		c.skip(tr, &outcome, ReasonParseFailed, err)
		return pageResult{}
	}
	outcome.State = PageParsed

	chain := c.resolveBreadcrumbs(ctx, tr, title, page)
	node := c.newNode(title, page)
	outcome.NodeID = node.ID
	tr.register(title, node)

	edge := graph.Edge{
		Source:  parent.node.ID,
		Target:  node.ID,
		Type:    graph.ClassifyRelationship(parent.node.Type, node.Type, link.Section),
		Section: link.Section,
	}
	pagePath := folderPath(chain, title, parent.path)
	logger.Debug("page classified",
		"node_type", node.Type,
		"edge_type", edge.Type,
		"section", link.Section,
		"path", pagePath,
	)

	c.detectCountry(ctx, tr, chain, title, node.Type, pagePath)

	var below pageResult
	if depth < c.cfg.Crawler.MaxDepth-1 {
		outcome.State = PageChildrenScheduled
		children := page.Links(sections)
		logger.Debug("children scheduled", "links", len(children))
		self := parentContext{node: node, query: title, path: pagePath}
		below = c.fetchRecursive(ctx, tr, children, sections, depth+1, self)
	} else {
		outcome.State = PageLeaf
	}

	doc := newPageDocument(title, parent.query, node, page, chain, pagePath)
	persistErr := c.persistPage(tr, pagePath, title, body, page, doc)
	if persistErr == nil {
		local := graph.NewCollection()
		local.AddNode(node)
		local.Add(below.nodes, below.edges)
		if err := c.writer.WriteLocalGraph(pagePath, local.Graph(c.source.Name(), title)); err != nil {
			persistErr = err
			tr.Stats.PersistErrors.Add(1)
			c.metrics.PersistFailed()
		}
	}
	c.finish(tr, &outcome, persistErr)

	return pageResult{
		nodes: append([]graph.Node{node}, below.nodes...),
		edges: append([]graph.Edge{edge}, below.edges...),
	}
}

func (c *Crawler) newNode(title string, page *parser.Page) graph.Node {
	return graph.Node{
		ID:          graph.NodeID(c.source.Name(), title),
		Name:        graph.Slug(title),
		Title:       title,
		Type:        graph.ClassifyNode(page.Features()),
		QueryID:     graph.QueryID(title),
		Source:      c.source.Name(),
		Coordinates: page.Coordinates,
		Sections:    page.SectionKeys(),
	}
}

func (c *Crawler) skip(tr *Traversal, o *PageOutcome, reason string, err error) {
	o.State = PageSkipped
	o.Reason = reason
	if err != nil {
		o.Err = err.Error()
	}
	tr.record(*o)
	c.metrics.PageDone(o.State.String())
}

// finish records a fetched page. A persistence failure leaves the page in
// its last state with the error attached; its node still counts.
func (c *Crawler) finish(tr *Traversal, o *PageOutcome, persistErr error) {
	if persistErr != nil {
		o.Reason = ReasonPersistError
		o.Err = persistErr.Error()
	} else {
		o.State = PagePersisted
	}
	tr.record(*o)
	c.metrics.PageDone(o.State.String())
}

// persistPage writes the html, markdown and json artifacts of a page.
func (c *Crawler) persistPage(tr *Traversal, pagePath, title string, body []byte, page *parser.Page, doc *PageDocument) error {
	artifacts := storage.PageArtifacts{HTML: body, Document: doc}
	if c.cfg.Storage.SaveMarkdown {
		md, err := page.Markdown()
		if err != nil {
			c.logger.Warn("markdown rendering failed", "page", title, "error", err)
		}
		artifacts.Markdown = md
	}
	if err := c.writer.WritePage(pagePath, graph.Slug(title), artifacts); err != nil {
		tr.Stats.PersistErrors.Add(1)
		c.metrics.PersistFailed()
		c.logger.Error("persist failed", "page", title, "path", pagePath, "error", err)
		return err
	}
	return nil
}

// breadcrumbStrategy yields a trail for a page, or nil.
type breadcrumbStrategy struct {
	name    string
	resolve func(ctx context.Context, c *Crawler, tr *Traversal, title string, page *parser.Page) []parser.Breadcrumb
}

// Evaluated in order until one yields a trail. None yielding one means the
// page has no ancestry.
var breadcrumbStrategies = []breadcrumbStrategy{
	{name: "page", resolve: pageBreadcrumbs},
	{name: "canonical", resolve: canonicalBreadcrumbs},
	{name: "known-hierarchy", resolve: knownBreadcrumbs},
}

func (c *Crawler) resolveBreadcrumbs(ctx context.Context, tr *Traversal, title string, page *parser.Page) []parser.Breadcrumb {
	for _, s := range breadcrumbStrategies {
		if chain := s.resolve(ctx, c, tr, title, page); len(chain) > 0 {
			c.logger.Debug("breadcrumbs resolved", "page", title, "strategy", s.name, "crumbs", len(chain))
			return chain
		}
	}
	return nil
}

func pageBreadcrumbs(_ context.Context, _ *Crawler, _ *Traversal, _ string, page *parser.Page) []parser.Breadcrumb {
	return page.Breadcrumbs
}

func canonicalBreadcrumbs(ctx context.Context, c *Crawler, tr *Traversal, title string, _ *parser.Page) []parser.Breadcrumb {
	body, err := c.source.CanonicalHTML(ctx, title)
	tr.Stats.CanonicalRefetches.Add(1)
	if err != nil {
		c.logger.Debug("canonical page unavailable", "page", title, "error", err)
		return nil
	}
	chain, err := c.parser.ParseBreadcrumbs(title, body)
	if err != nil {
		return nil
	}
	return chain
}

func knownBreadcrumbs(_ context.Context, c *Crawler, _ *Traversal, title string, _ *parser.Page) []parser.Breadcrumb {
	return parser.KnownHierarchy(title, c.cfg.Crawler.KnownHierarchies)
}

// folderPath is the breadcrumb path of a page, ending in its own slug. A
// page without a trail nests under its parent's folder.
func folderPath(chain []parser.Breadcrumb, title, parentPath string) string {
	slug := graph.Slug(title)
	if len(chain) == 0 {
		if parentPath == "" {
			return slug
		}
		return path.Join(parentPath, slug)
	}
	p := parser.NormalizeBreadcrumbPath(chain)
	last := chain[len(chain)-1]
	if !last.IsCurrent() && graph.NormalizeName(last.Name) != graph.NormalizeName(title) {
		p = path.Join(p, slug)
	}
	return p
}

// breadcrumbGraph turns the root's ancestors into region placeholders
// linked top-down by contains edges, ending at root.
func breadcrumbGraph(source string, chain []parser.Breadcrumb, root string, rootNode graph.Node) ([]graph.Node, []graph.Edge) {
	ancestors := parser.Ancestors(chain, root)
	var nodes []graph.Node
	var edges []graph.Edge
	meta := map[string]string{"from_breadcrumb": "true"}
	for _, a := range ancestors {
		name := a.PageName
		if name == "" {
			name = a.Name
		}
		title := strings.ReplaceAll(name, "_", " ")
		n := graph.Node{
			ID:             graph.NodeID(source, title),
			Name:           graph.Slug(a.Name),
			Title:          a.Name,
			Type:           graph.NodeRegion,
			QueryID:        graph.QueryID(title),
			Source:         source,
			FromBreadcrumb: true,
		}
		if n.ID == rootNode.ID {
			continue
		}
		if len(nodes) > 0 {
			edges = append(edges, graph.Edge{
				Source:   nodes[len(nodes)-1].ID,
				Target:   n.ID,
				Type:     graph.EdgeContains,
				Metadata: meta,
			})
		}
		nodes = append(nodes, n)
	}
	if len(nodes) > 0 {
		edges = append(edges, graph.Edge{
			Source:   nodes[len(nodes)-1].ID,
			Target:   rootNode.ID,
			Type:     graph.EdgeContains,
			Metadata: meta,
		})
	}
	return nodes, edges
}

// detectCountry runs the country hooks the first time a country shows up.
// A country page with no trail is its own country.
func (c *Crawler) detectCountry(ctx context.Context, tr *Traversal, chain []parser.Breadcrumb, title string, nodeType graph.NodeType, pagePath string) {
	country := parser.DetectCountry(chain, title)
	if country == "" && nodeType == graph.NodeCountry {
		country = title
	}
	if country == "" || !tr.markCountry(country) {
		return
	}
	tr.Stats.Countries.Add(1)
	c.metrics.CountryDetected()

	info := CountryInfo{
		Name:   country,
		Folder: countryFolder(pagePath, country),
		Source: c.source.Name(),
	}
	c.logger.Info("country detected", "country", country, "page", title, "folder", info.Folder)

	c.mu.Lock()
	hooks := append([]CountryHook(nil), c.hooks...)
	c.mu.Unlock()
	for _, h := range hooks {
		if err := h.OnCountry(ctx, info); err != nil {
			c.logger.Warn("country hook failed", "country", country, "error", err)
		}
	}
}

// countryFolder cuts pagePath after the country's own segment.
func countryFolder(pagePath, country string) string {
	slug := graph.Slug(country)
	parts := strings.Split(pagePath, "/")
	for i, p := range parts {
		if p == slug {
			return strings.Join(parts[:i+1], "/")
		}
	}
	return pagePath
}
