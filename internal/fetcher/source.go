package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/IshaanNene/voyagegraph/internal/config"
	"github.com/IshaanNene/voyagegraph/internal/types"
)

// SourceFolder is the output directory shared by every language edition.
const SourceFolder = "wikivoyage"

// Summary is the short abstract of a page.
type Summary struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	URL     string `json:"url"`
}

type summaryPayload struct {
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// WikiSource reads articles from one Wikivoyage language edition through
// its REST content API, falling back to canonical /wiki/ pages where the
// API variant lacks the skin chrome.
type WikiSource struct {
	fetcher Fetcher
	site    string
	name    string
	logger  *slog.Logger
}

// NewWikiSource creates a source for cfg.Language.
func NewWikiSource(f Fetcher, cfg *config.CrawlerConfig, logger *slog.Logger) *WikiSource {
	return &WikiSource{
		fetcher: f,
		site:    strings.TrimRight(cfg.SiteURL(), "/"),
		name:    "wikivoyage_" + cfg.Language,
		logger:  logger.With("component", "wiki_source", "source", "wikivoyage_"+cfg.Language),
	}
}

// Name identifies the source in node ids, e.g. "wikivoyage_en".
func (s *WikiSource) Name() string { return s.name }

// PageURL is the canonical article URL.
func (s *WikiSource) PageURL(title string) string {
	return s.site + "/wiki/" + TitlePath(title)
}

// PageHTML fetches the article body from the content API.
func (s *WikiSource) PageHTML(ctx context.Context, title string) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		return nil, types.ErrInvalidTitle
	}
	resp, err := s.fetcher.Fetch(ctx, Request{
		URL:    s.site + "/api/rest_v1/page/html/" + TitlePath(title),
		Accept: "text/html",
		Kind:   KindPageHTML,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CanonicalHTML fetches the full rendered page, which carries breadcrumbs.
func (s *WikiSource) CanonicalHTML(ctx context.Context, title string) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		return nil, types.ErrInvalidTitle
	}
	resp, err := s.fetcher.Fetch(ctx, Request{
		URL:  s.PageURL(title),
		Kind: KindCanonical,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Summary fetches the abstract and canonical URL of a page.
func (s *WikiSource) Summary(ctx context.Context, title string) (*Summary, error) {
	if strings.TrimSpace(title) == "" {
		return nil, types.ErrInvalidTitle
	}
	u := s.site + "/api/rest_v1/page/summary/" + TitlePath(title)
	resp, err := s.fetcher.Fetch(ctx, Request{
		URL:    u,
		Accept: "application/json",
		Kind:   KindSummary,
	})
	if err != nil {
		return nil, err
	}
	var payload summaryPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, &types.ParseError{Page: title, Stage: "summary", Err: fmt.Errorf("decode %s: %w", u, err)}
	}
	sum := &Summary{
		Title:   payload.Title,
		Extract: payload.Extract,
		URL:     payload.ContentURLs.Desktop.Page,
	}
	if sum.Title == "" {
		sum.Title = title
	}
	if sum.URL == "" {
		sum.URL = s.PageURL(title)
	}
	return sum, nil
}

// TitlePath turns a page title into its URL path segment.
func TitlePath(title string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}
