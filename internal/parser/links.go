package parser

import (
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/voyagegraph/internal/graph"
)

// Link is a child page discovered under a section.
type Link struct {
	PageName string `json:"page_name"`
	Section  string `json:"section"`
}

// Title is the page name as a human-readable query.
func (l Link) Title() string {
	return strings.ReplaceAll(l.PageName, "_", " ")
}

var excludedNamespaces = []string{
	"category:",
	"file:",
	"template:",
	"special:",
	"help:",
	"user:",
	"user_talk:",
}

// ExtractLinks returns the internal page names linked from a section, in
// document order and without duplicates. Absolute links count as internal
// only when their host is one of siteHosts.
func ExtractLinks(root *goquery.Selection, section string, siteHosts ...string) []string {
	h := findHeading(root, section)
	if h == nil {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	sectionBody(h).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		name, ok := contentLink(a, siteHosts)
		if !ok {
			return
		}
		key := graph.NormalizeName(name)
		if seen[key] {
			return
		}
		seen[key] = true
		names = append(names, name)
	})
	return names
}

// ExtractLinksFromSections gathers links over sections in order. A page
// listed under several sections is attributed to the first one.
func ExtractLinksFromSections(root *goquery.Selection, sections []string, siteHosts ...string) []Link {
	var links []Link
	seen := make(map[string]bool)
	for _, section := range sections {
		for _, name := range ExtractLinks(root, section, siteHosts...) {
			key := graph.NormalizeName(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			links = append(links, Link{PageName: name, Section: section})
		}
	}
	return links
}

// contentLink reports the page name of a link that points at an article.
// Interwiki and external anchors are rejected by rel token and class.
func contentLink(a *goquery.Selection, siteHosts []string) (string, bool) {
	if a.Closest(".mw-editsection").Length() > 0 || a.HasClass("new") || a.HasClass("extiw") || a.HasClass("external") {
		return "", false
	}
	text := strings.TrimSpace(a.Text())
	if text == "" || strings.EqualFold(text, "[edit]") || strings.EqualFold(text, "edit") {
		return "", false
	}
	if rel, ok := a.Attr("rel"); ok && !slices.Contains(strings.Fields(rel), "mw:WikiLink") {
		return "", false
	}
	href, _ := a.Attr("href")
	return PageNameFromHref(href, siteHosts...)
}

// PageNameFromHref extracts the article name from "./Name" and "/wiki/Name"
// hrefs, or from an absolute ".../wiki/Name" URL whose host is one of
// siteHosts. Fragments and query strings are dropped, and non-content
// namespaces are rejected.
func PageNameFromHref(href string, siteHosts ...string) (string, bool) {
	var name string
	switch {
	case strings.HasPrefix(href, "./"):
		name = href[2:]
	case strings.HasPrefix(href, "/wiki/"):
		name = href[len("/wiki/"):]
	default:
		u, err := url.Parse(href)
		if err != nil || u.Host == "" || !slices.Contains(siteHosts, strings.ToLower(u.Host)) {
			return "", false
		}
		path := u.EscapedPath()
		if !strings.HasPrefix(path, "/wiki/") {
			return "", false
		}
		name = path[len("/wiki/"):]
	}
	if i := strings.IndexAny(name, "#?"); i >= 0 {
		name = name[:i]
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return validPageName(name)
}

// validPageName trims name and rejects empty names and non-content
// namespaces.
func validPageName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, ns := range excludedNamespaces {
		if strings.HasPrefix(lower, ns) {
			return "", false
		}
	}
	return name, true
}

// SiteHost returns the lowercased host of a site URL, or "" if it has none.
func SiteHost(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
