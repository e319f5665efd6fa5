package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/voyagegraph/internal/graph"
)

// Candidates for the article container, most specific first.
var mainContentSelectors = []string{
	"div.mw-parser-output",
	"body.mw-parser-output",
	"main",
	"#content",
	"body",
}

// MainContent returns the article container, or nil for an empty document.
func MainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

// Removed before rendering markdown.
const renderNoise = "script, style, link, meta, nav, .mw-editsection, .noprint, .mw-empty-elt"

// RenderMarkdown converts the main content of doc into markdown headed by
// title.
func RenderMarkdown(doc *goquery.Document, title string) (string, error) {
	main := MainContent(doc)
	if main == nil {
		return "# " + title + "\n", nil
	}
	clean := main.Clone()
	clean.Find(renderNoise).Remove()
	inner, err := clean.Html()
	if err != nil {
		return "", err
	}

	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	body, err := conv.ConvertString(inner)
	if err != nil {
		return "", err
	}
	return "# " + title + "\n\n" + strings.TrimSpace(body) + "\n", nil
}

var wgCoordinates = regexp.MustCompile(`"wgCoordinates":\{"lat":(-?[\d.]+),"lon":(-?[\d.]+)\}`)

// coordinateStrategy finds a page position.
type coordinateStrategy func(doc *goquery.Document, raw []byte) *graph.Coordinates

var coordinateStrategies = []coordinateStrategy{
	coordinatesFromConfig,
	coordinatesFromGeoSpan,
}

// ExtractCoordinates returns the page position, or nil if none is found.
func ExtractCoordinates(doc *goquery.Document, raw []byte) *graph.Coordinates {
	for _, s := range coordinateStrategies {
		if c := s(doc, raw); c != nil {
			return c
		}
	}
	return nil
}

func coordinatesFromConfig(_ *goquery.Document, raw []byte) *graph.Coordinates {
	m := wgCoordinates.FindSubmatch(raw)
	if m == nil {
		return nil
	}
	return makeCoordinates(string(m[1]), string(m[2]))
}

// coordinatesFromGeoSpan reads the first page-level geo span. Spans inside
// listings, list items or any section past the lead belong to a place on the
// page, not to the page itself.
func coordinatesFromGeoSpan(doc *goquery.Document, _ []byte) *graph.Coordinates {
	geo := doc.Find("span.geo").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if s.Closest("li, .vcard, .listing-metadata, .mw-editsection").Length() > 0 {
			return false
		}
		section := s.Closest("section")
		return section.Length() == 0 || section.AttrOr("data-mw-section-id", "") == "0"
	}).First()
	text := cleanText(geo.Text())
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == ',' })
	if len(parts) != 2 {
		return nil
	}
	return makeCoordinates(parts[0], parts[1])
}

func makeCoordinates(latStr, lonStr string) *graph.Coordinates {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil
	}
	return &graph.Coordinates{Lat: lat, Lon: lon}
}

var languagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:official|national|main|primary)\s+languages?\s+(?:is|are)\s+([^.;]+)`),
	regexp.MustCompile(`\b([A-Z][a-z]+)\s+is\s+the\s+(?:official|national|main|primary)\s+language`),
}

var languageSplit = regexp.MustCompile(`\s*(?:,|\band\b|\bor\b)\s*`)

// ExtractLanguages pulls language names out of a Talk section.
func ExtractLanguages(talk string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range languagePatterns {
		for _, m := range re.FindAllStringSubmatch(talk, -1) {
			for _, name := range languageSplit.Split(m[1], -1) {
				name = strings.TrimSpace(name)
				if !isLanguageName(name) {
					continue
				}
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// isLanguageName accepts one to three capitalized words, which drops the
// clause tails a greedy match drags along.
func isLanguageName(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, w := range words {
		if !unicode.IsUpper([]rune(w)[0]) {
			return false
		}
	}
	return true
}
