package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/IshaanNene/voyagegraph/internal/graph"
)

// Breadcrumb is one step of a page's ancestry trail. PageName is empty for
// the current page.
type Breadcrumb struct {
	Name     string `json:"name"`
	PageName string `json:"page_name,omitempty"`
}

// IsCurrent reports whether the crumb is the page itself.
func (b Breadcrumb) IsCurrent() bool { return b.PageName == "" }

// breadcrumbStrategy locates the element holding the trail.
type breadcrumbStrategy struct {
	name   string
	locate func(doc *goquery.Document) *goquery.Selection
}

const geocrumbsClass = `contains(concat(' ', normalize-space(@class), ' '), ' ext-geocrumbs-breadcrumbs ')`

// Evaluated in order until one yields at least one crumb.
var breadcrumbStrategies = []breadcrumbStrategy{
	{name: "geocrumbs", locate: xpathLocator(`//div[@id='contentSub']//div[@id='mw-content-subtitle']//span[` + geocrumbsClass + `]`)},
	{name: "subtitle", locate: xpathLocator(`//div[@id='mw-content-subtitle']//span[` + geocrumbsClass + `]`)},
	{name: "breadcrumb-class", locate: locateBreadcrumbClass},
	{name: "continent-heuristic", locate: locateByContinent},
}

// ExtractBreadcrumbs returns the ancestry trail, or nil if the page has none.
func ExtractBreadcrumbs(doc *goquery.Document) []Breadcrumb {
	for _, s := range breadcrumbStrategies {
		sel := s.locate(doc)
		if sel == nil || sel.Length() == 0 {
			continue
		}
		if crumbs := parseCrumbs(sel.First()); len(crumbs) > 0 {
			return crumbs
		}
	}
	return nil
}

func xpathLocator(expr string) func(doc *goquery.Document) *goquery.Selection {
	return func(doc *goquery.Document) *goquery.Selection {
		if len(doc.Nodes) == 0 {
			return nil
		}
		nodes, err := htmlquery.QueryAll(doc.Nodes[0], expr)
		if err != nil || len(nodes) == 0 {
			return nil
		}
		return doc.FindNodes(nodes[0])
	}
}

func locateBreadcrumbClass(doc *goquery.Document) *goquery.Selection {
	return doc.Find("span[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		return strings.Contains(strings.ToLower(class), "breadcrumb")
	})
}

func locateByContinent(doc *goquery.Document) *goquery.Selection {
	looksLikeTrail := func(s *goquery.Selection) bool {
		text := strings.ToLower(s.Text())
		if !strings.Contains(text, ">") {
			return false
		}
		for _, c := range continents {
			if strings.Contains(text, c) {
				return true
			}
		}
		return false
	}
	// Innermost matching span, so a wrapper around the whole header loses.
	return doc.Find("span").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return looksLikeTrail(s) && s.Find("span").FilterFunction(func(_ int, in *goquery.Selection) bool {
			return looksLikeTrail(in)
		}).Length() == 0
	})
}

func parseCrumbs(container *goquery.Selection) []Breadcrumb {
	var crumbs []Breadcrumb
	if bdis := container.Find("bdi"); bdis.Length() > 0 {
		bdis.Each(func(_ int, b *goquery.Selection) {
			if a := b.Find("a[href]").First(); a.Length() > 0 {
				if crumb, ok := crumbFromLink(a); ok {
					crumbs = append(crumbs, crumb)
				}
				return
			}
			if name := cleanText(b.Text()); name != "" {
				crumbs = append(crumbs, Breadcrumb{Name: name})
			}
		})
		return crumbs
	}

	links := container.Find("a[href]")
	for _, part := range strings.Split(container.Text(), ">") {
		name := cleanText(part)
		if name == "" {
			continue
		}
		a := links.FilterFunction(func(_ int, a *goquery.Selection) bool {
			return cleanText(a.Text()) == name
		}).First()
		if crumb, ok := crumbFromLink(a); ok {
			crumbs = append(crumbs, crumb)
			continue
		}
		crumbs = append(crumbs, Breadcrumb{Name: name})
	}
	return crumbs
}

func crumbFromLink(a *goquery.Selection) (Breadcrumb, bool) {
	if a.Length() == 0 {
		return Breadcrumb{}, false
	}
	href, _ := a.Attr("href")
	title := strings.TrimSpace(a.AttrOr("title", ""))
	page, ok := PageNameFromHref(href)
	if !ok && !strings.HasPrefix(href, "./") && !strings.HasPrefix(href, "/wiki/") {
		// Unrecognized link shape, e.g. /w/index.php?title=X.
		page, ok = fallbackPageName(href, title, cleanText(a.Text()))
	}
	if !ok {
		return Breadcrumb{}, false
	}
	name := title
	if name == "" {
		name = strings.ReplaceAll(page, "_", " ")
	}
	if name == "" {
		name = cleanText(a.Text())
	}
	return Breadcrumb{Name: name, PageName: page}, true
}

// fallbackPageName takes the page name from a title query parameter, then
// the link's title attribute, then its text.
func fallbackPageName(href, title, text string) (string, bool) {
	candidate := ""
	if u, err := url.Parse(href); err == nil {
		candidate = u.Query().Get("title")
	}
	if strings.TrimSpace(candidate) == "" {
		candidate = title
	}
	if strings.TrimSpace(candidate) == "" {
		candidate = text
	}
	return validPageName(strings.ReplaceAll(strings.TrimSpace(candidate), " ", "_"))
}

// NormalizeBreadcrumbPath joins the slugged crumbs with "/":
// Europe > Central Europe > Poland becomes "europe/central_europe/poland".
func NormalizeBreadcrumbPath(chain []Breadcrumb) string {
	parts := make([]string, 0, len(chain))
	for _, c := range chain {
		if s := graph.Slug(c.Name); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Ancestors returns the crumbs above the current page.
func Ancestors(chain []Breadcrumb, current string) []Breadcrumb {
	cur := graph.NormalizeName(current)
	out := make([]Breadcrumb, 0, len(chain))
	for _, c := range chain {
		if c.IsCurrent() || (cur != "" && graph.NormalizeName(c.Name) == cur) {
			continue
		}
		out = append(out, c)
	}
	return out
}

var continents = []string{
	"europe", "asia", "africa", "america", "oceania", "antarctica", "caribbean", "middle east",
}

var regionKeywords = []string{
	"europe", "asia", "america", "africa", "oceania", "antarctica",
	"central europe", "western europe", "eastern europe", "southern europe", "northern europe",
	"southeast asia", "east asia", "south asia", "central asia", "middle east",
	"north america", "south america", "central america", "caribbean",
	"east africa", "west africa", "southern africa", "north africa",
}

var adminKeywords = map[string]bool{
	"voivodeship": true, "voivodship": true, "oblast": true, "state": true,
	"province": true, "region": true, "county": true, "prefecture": true,
	"governorate": true,
}

var directionPrefixes = map[string]bool{
	"lower": true, "upper": true, "greater": true, "lesser": true,
	"north": true, "south": true, "east": true, "west": true,
}

// Real countries that the administrative heuristics would otherwise skip.
var countryExceptions = map[string]bool{
	"south africa": true, "north korea": true, "south korea": true, "south sudan": true,
	"north macedonia": true, "east timor": true, "united states": true,
	"united states of america": true, "central african republic": true,
}

// DetectCountry returns the nearest enclosing country in chain, scanning
// ancestors from most to least specific. Continents and administrative
// subdivisions are skipped. It returns "" when nothing qualifies.
func DetectCountry(chain []Breadcrumb, current string) string {
	ancestors := Ancestors(chain, current)
	if len(chain) < 2 {
		return ""
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		name := ancestors[i].Name
		lower := strings.ToLower(strings.TrimSpace(name))
		if countryExceptions[lower] {
			return name
		}
		if isContinental(lower) || isAdministrative(lower) {
			continue
		}
		return name
	}
	return ""
}

// isContinental matches region keywords on word boundaries, so "Malaysia"
// is not mistaken for Asia.
func isContinental(lower string) bool {
	padded := " " + strings.Join(strings.Fields(lower), " ") + " "
	for _, k := range regionKeywords {
		if strings.Contains(padded, " "+k+" ") {
			return true
		}
	}
	return false
}

func isAdministrative(lower string) bool {
	words := strings.Fields(lower)
	if strings.Contains(lower, "autonomous region") {
		return true
	}
	for _, w := range words {
		if adminKeywords[w] {
			return true
		}
		if strings.HasSuffix(w, "skie") || strings.HasSuffix(w, "ckie") || strings.HasSuffix(w, "zkie") {
			return true
		}
	}
	return len(words) > 1 && directionPrefixes[words[0]]
}

var builtinHierarchies = map[string]string{
	"poland":  "europe/central_europe/poland",
	"france":  "europe/western_europe/france",
	"germany": "europe/central_europe/germany",
	"spain":   "europe/southern_europe/spain",
	"italy":   "europe/southern_europe/italy",
}

// KnownHierarchy returns a synthetic trail for a page that carries no
// breadcrumbs, from extra first and then the built-in table.
func KnownHierarchy(name string, extra map[string]string) []Breadcrumb {
	key := graph.NormalizeName(name)
	var path string
	var ok bool
	for k, v := range extra {
		if graph.NormalizeName(k) == key {
			path, ok = v, true
			break
		}
	}
	if !ok {
		path, ok = builtinHierarchies[key]
	}
	if !ok || path == "" {
		return nil
	}
	title := cases.Title(language.Und)
	segments := strings.Split(strings.Trim(path, "/"), "/")
	chain := make([]Breadcrumb, 0, len(segments))
	for i, seg := range segments {
		display := title.String(strings.ReplaceAll(seg, "_", " "))
		crumb := Breadcrumb{Name: display}
		if i < len(segments)-1 {
			crumb.PageName = strings.ReplaceAll(display, " ", "_")
		}
		chain = append(chain, crumb)
	}
	return chain
}
