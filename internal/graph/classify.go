package graph

import "strings"

// Section keys as produced by the section catalog slugging.
const (
	SectionRegions    = "regions"
	SectionCities     = "cities"
	SectionGetIn      = "get_in"
	SectionGetAround  = "get_around"
	SectionSee        = "see"
	SectionDo         = "do"
	SectionEat        = "eat"
	SectionOtherDests = "other_destinations"
)

// Features is what the node classifier looks at.
type Features struct {
	Sections       map[string]bool
	HasCoordinates bool
}

// NewFeatures builds Features from a list of section keys.
func NewFeatures(sections []string, hasCoordinates bool) Features {
	set := make(map[string]bool, len(sections))
	for _, s := range sections {
		set[s] = true
	}
	return Features{Sections: set, HasCoordinates: hasCoordinates}
}

func (f Features) has(keys ...string) bool {
	for _, k := range keys {
		if f.Sections[k] {
			return true
		}
	}
	return false
}

// ClassifyNode infers a node type from the sections a page carries.
// It is a best-effort heuristic: the first matching rule wins and the
// result is never an error.
func ClassifyNode(f Features) NodeType {
	listings := f.has(SectionRegions, SectionCities)
	access := f.has(SectionGetIn, SectionGetAround)
	activities := f.has(SectionSee, SectionDo, SectionEat)

	switch {
	case listings:
		return NodeCountry
	case access && activities:
		return NodeCity
	case access:
		return NodeDestination
	case f.HasCoordinates && !f.has(SectionGetIn):
		return NodeAttraction
	case f.has(SectionSee, SectionDo):
		return NodeRegion
	default:
		return NodeDestination
	}
}

var (
	citySections   = map[string]bool{"cities": true, "cities and towns": true, "municipalities": true}
	regionSections = map[string]bool{"regions": true, "subregions": true}
)

const otherDestinationsSection = "other destinations"

// ClassifyRelationship infers the edge type between a parent and the child
// discovered under section. Rules are applied in order; related_to is the
// final fallback.
func ClassifyRelationship(parent, child NodeType, section string) EdgeType {
	s := strings.ToLower(strings.TrimSpace(section))

	switch {
	case citySections[s]:
		if (parent == NodeCountry || parent == NodeRegion) && child == NodeCity {
			return EdgeContains
		}
	case regionSections[s]:
		if parent == NodeCountry && child == NodeRegion {
			return EdgeContains
		}
		if parent == NodeRegion && child == NodeRegion {
			return EdgePartOf
		}
	case s == otherDestinationsSection:
		return EdgeContains
	}

	if parent == NodeCountry {
		switch child {
		case NodeCity, NodeRegion, NodeDestination:
			return EdgeContains
		}
	}
	// Shadowed by the country default above for city children; kept so the
	// documented rule order stays intact.
	if child == NodeCity && parent == NodeCountry {
		return EdgeLocatedIn
	}
	return EdgeRelatedTo
}
