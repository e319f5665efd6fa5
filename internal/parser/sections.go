package parser

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Catalog is the fixed list of travel-guide sections extracted from every page.
var Catalog = []string{
	"Beginning",
	"Regions",
	"Cities",
	"Other destinations",
	"Understand",
	"Talk",
	"Get in",
	"Get around",
	"See",
	"Do",
	"Buy",
	"Eat",
	"Drink",
	"Sleep",
	"Learn",
	"Work",
	"Stay safe",
	"Stay healthy",
	"Respect",
	"Connect",
}

const (
	headingTags = "h1, h2, h3, h4, h5, h6"
	blockTags   = "p, ul, ol, dl"
)

// Definition is one term/definition pair of a definition list.
type Definition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// SectionContent is the body of one heading.
type SectionContent struct {
	Name        string       `json:"name"`
	Paragraphs  []string     `json:"paragraphs,omitempty"`
	ListItems   []string     `json:"list_items,omitempty"`
	Definitions []Definition `json:"definitions,omitempty"`

	// Text renders every block in document order.
	Text string `json:"text"`

	lines []string
}

// IsEmpty reports whether nothing was collected.
func (c SectionContent) IsEmpty() bool {
	return len(c.Paragraphs) == 0 && len(c.ListItems) == 0 && len(c.Definitions) == 0
}

func (c *SectionContent) addBlock(s *goquery.Selection) {
	switch goquery.NodeName(s) {
	case "p":
		if text := cleanText(s.Text()); text != "" {
			c.Paragraphs = append(c.Paragraphs, text)
			c.lines = append(c.lines, text)
		}
	case "ul", "ol":
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if text := cleanText(li.Text()); text != "" {
				c.ListItems = append(c.ListItems, text)
				c.lines = append(c.lines, "• "+text)
			}
		})
	case "dl":
		s.ChildrenFiltered("dt").Each(func(_ int, dt *goquery.Selection) {
			term := cleanText(dt.Text())
			defn := cleanText(dt.NextFiltered("dd").Text())
			if term == "" && defn == "" {
				return
			}
			c.Definitions = append(c.Definitions, Definition{Term: term, Definition: defn})
			c.lines = append(c.lines, term+": "+defn)
		})
	}
}

func (c *SectionContent) finish() {
	c.Text = strings.Join(c.lines, "\n")
	c.lines = nil
}

// SectionKey turns a heading name into its map key: "Get in" -> "get_in".
func SectionKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ExtractSection returns the content under the heading named title. A
// missing heading yields empty content, not an error.
func ExtractSection(root *goquery.Selection, title string) SectionContent {
	content := SectionContent{Name: title}
	h := findHeading(root, title)
	if h == nil {
		return content
	}
	body := sectionBody(h)
	collectBlocks(body, &content)
	content.finish()
	return content
}

// ExtractAllSections runs ExtractSection over the Catalog and keeps the
// non-empty results keyed by SectionKey.
func ExtractAllSections(root *goquery.Selection) map[string]SectionContent {
	out := make(map[string]SectionContent)
	for _, name := range Catalog {
		c := ExtractSection(root, name)
		if !c.IsEmpty() {
			out[SectionKey(name)] = c
		}
	}
	return out
}

// ExtractListItems returns the names listed under a heading, e.g. the
// cities of a country. A leading link's text wins over the item text; a
// trailing description or parenthetical is dropped.
func ExtractListItems(root *goquery.Selection, title string) []string {
	h := findHeading(root, title)
	if h == nil {
		return nil
	}
	var items []string
	seen := make(map[string]bool)
	topLevel(sectionBody(h), "ul, ol").Each(func(_ int, list *goquery.Selection) {
		list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			name := listItemName(li)
			if name != "" && !seen[name] {
				seen[name] = true
				items = append(items, name)
			}
		})
	})
	return items
}

// ExtractSubsections maps each lower-rank heading under title to the text
// beneath it.
func ExtractSubsections(root *goquery.Selection, title string) map[string]string {
	h := findHeading(root, title)
	if h == nil {
		return nil
	}
	level := headingLevel(h)
	out := make(map[string]string)
	sectionBody(h).Each(func(_ int, s *goquery.Selection) {
		var subs *goquery.Selection
		switch {
		case headingLevel(s) > 0:
			subs = s
		case wrapperLevel(s) > 0:
			subs = s.ChildrenFiltered(headingTags).First()
		default:
			subs = s.Find(headingTags)
		}
		subs.Each(func(_ int, sub *goquery.Selection) {
			if sub.IsSelection(h) || headingLevel(sub) <= level {
				return
			}
			c := SectionContent{}
			collectBlocks(sectionBody(sub), &c)
			c.finish()
			if name := headingText(sub); name != "" && c.Text != "" {
				out[name] = c.Text
			}
		})
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func listItemName(li *goquery.Selection) string {
	if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
		if text := cleanText(a.Text()); text != "" {
			return text
		}
	}
	text := cleanText(li.Text())
	for _, sep := range []string{" — ", " – ", " - "} {
		if i := strings.Index(text, sep); i > 0 {
			text = text[:i]
		}
	}
	if i := strings.LastIndex(text, " ("); i > 0 && strings.HasSuffix(text, ")") {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// headingStrategy locates a heading for a section name.
type headingStrategy struct {
	name string
	find func(root *goquery.Selection, title string) *goquery.Selection
}

// Exact id match first, then text match.
var headingStrategies = []headingStrategy{
	{name: "id", find: findHeadingByID},
	{name: "text", find: findHeadingByText},
}

func findHeading(root *goquery.Selection, title string) *goquery.Selection {
	if strings.TrimSpace(title) == "" {
		return nil
	}
	for _, s := range headingStrategies {
		if h := s.find(root, title); h != nil && h.Length() > 0 {
			return h.First()
		}
	}
	return nil
}

func findHeadingByID(root *goquery.Selection, title string) *goquery.Selection {
	key := SectionKey(title)
	match := root.Find("h2, h3, h4").FilterFunction(func(_ int, h *goquery.Selection) bool {
		id, ok := h.Attr("id")
		if !ok {
			// Older skins put the id on an inner headline span.
			id, _ = h.ChildrenFiltered("span.mw-headline").Attr("id")
		}
		return id != "" && strings.ToLower(id) == key
	})
	if match.Length() == 0 {
		return nil
	}
	return match
}

func findHeadingByText(root *goquery.Selection, title string) *goquery.Selection {
	want := strings.ToLower(strings.TrimSpace(title))
	match := root.Find("h2, h3, h4").FilterFunction(func(_ int, h *goquery.Selection) bool {
		return headingMatches(strings.ToLower(headingText(h)), want)
	})
	if match.Length() == 0 {
		return nil
	}
	return match
}

// headingMatches accepts an exact match or a prefix followed by whitespace
// or a colon, so "See" matches "See: museums" but not "Seeing".
func headingMatches(text, want string) bool {
	if text == want {
		return true
	}
	if !strings.HasPrefix(text, want) {
		return false
	}
	next := []rune(text[len(want):])[0]
	return unicode.IsSpace(next) || next == ':'
}

// headingText is the heading's text without edit-section links.
func headingText(h *goquery.Selection) string {
	clone := h.Clone()
	clone.Find(".mw-editsection").Remove()
	return cleanText(clone.Text())
}

// headingLevel returns 1-6 for h1-h6 and 0 for anything else.
func headingLevel(s *goquery.Selection) int {
	name := goquery.NodeName(s)
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}

// wrapperLevel is the level of a div.mw-heading wrapper, 0 otherwise.
func wrapperLevel(s *goquery.Selection) int {
	if goquery.NodeName(s) != "div" || !s.HasClass("mw-heading") {
		return 0
	}
	return headingLevel(s.ChildrenFiltered(headingTags).First())
}

// blockLevel is the heading level of a sibling, whether bare or wrapped.
func blockLevel(s *goquery.Selection) int {
	if lvl := headingLevel(s); lvl > 0 {
		return lvl
	}
	return wrapperLevel(s)
}

// anchor is the element whose siblings hold the section body: the heading
// itself, or its div.mw-heading wrapper.
func anchor(h *goquery.Selection) *goquery.Selection {
	if p := h.Parent(); wrapperLevel(p) > 0 {
		return p
	}
	return h
}

// bodyStrategy returns the elements that make up a heading's section.
type bodyStrategy func(h *goquery.Selection) *goquery.Selection

// The structured <section> layout first; the sibling walk as fallback.
var bodyStrategies = []bodyStrategy{
	structuredBody,
	siblingBody,
}

func sectionBody(h *goquery.Selection) *goquery.Selection {
	for _, strategy := range bodyStrategies {
		if body := strategy(h); body != nil && body.Length() > 0 {
			return body
		}
	}
	return h.Slice(0, 0)
}

// structuredBody returns the enclosing <section> when h is that section's
// own (first) heading.
func structuredBody(h *goquery.Selection) *goquery.Selection {
	a := anchor(h)
	sec := a.Parent()
	if goquery.NodeName(sec) != "section" {
		return nil
	}
	first := sec.Children().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return blockLevel(s) > 0
	}).First()
	if first.Length() == 0 || first.Get(0) != a.Get(0) {
		return nil
	}
	return sec
}

// siblingBody returns the siblings after the heading up to the next heading
// of equal or higher rank.
func siblingBody(h *goquery.Selection) *goquery.Selection {
	level := headingLevel(h)
	a := anchor(h)
	in := make(map[*html.Node]bool)
	for s := a.Next(); s.Length() > 0; s = s.Next() {
		if lvl := blockLevel(s); lvl > 0 && lvl <= level {
			break
		}
		in[s.Get(0)] = true
	}
	if len(in) == 0 {
		return nil
	}
	return a.Parent().Children().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return in[s.Get(0)]
	})
}

// collectBlocks adds every top-level block inside body, in document order.
func collectBlocks(body *goquery.Selection, c *SectionContent) {
	body.Each(func(_ int, s *goquery.Selection) {
		if s.Is(blockTags) {
			c.addBlock(s)
			return
		}
		topLevel(s, blockTags).Each(func(_ int, b *goquery.Selection) {
			c.addBlock(b)
		})
	})
}

// topLevel finds descendants of each element in sel that match selector and
// are not nested inside another block or list item.
func topLevel(sel *goquery.Selection, selector string) *goquery.Selection {
	var out *goquery.Selection
	sel.Each(func(_ int, s *goquery.Selection) {
		var found *goquery.Selection
		if s.Is(selector) {
			found = s
		} else {
			found = s.Find(selector).FilterFunction(func(_ int, b *goquery.Selection) bool {
				return !b.ParentsUntilSelection(s).Is(blockTags + ", li")
			})
		}
		if out == nil {
			out = found
		} else {
			out = out.AddSelection(found)
		}
	})
	if out == nil {
		return sel.Slice(0, 0)
	}
	return out
}

// cleanText collapses whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
