package engine

// PageState is the position of one page in its traversal lifecycle:
// Pending → Fetching → Parsed → {ChildrenScheduled | Leaf} → Persisted,
// or Skipped from Pending or Fetching.
type PageState int

const (
	PagePending PageState = iota
	PageFetching
	PageParsed
	PageChildrenScheduled
	PageLeaf
	PagePersisted
	PageSkipped
)

func (s PageState) String() string {
	switch s {
	case PagePending:
		return "pending"
	case PageFetching:
		return "fetching"
	case PageParsed:
		return "parsed"
	case PageChildrenScheduled:
		return "children_scheduled"
	case PageLeaf:
		return "leaf"
	case PagePersisted:
		return "persisted"
	case PageSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON documents.
func (s PageState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Skip reasons recorded on PageOutcome.Reason.
const (
	ReasonDuplicate    = "already_visited"
	ReasonFetchFailed  = "fetch_failed"
	ReasonParseFailed  = "parse_failed"
	ReasonCancelled    = "cancelled"
	ReasonPersistError = "persist_failed"
)

// PageOutcome is the final state of one scheduled page.
type PageOutcome struct {
	Query   string    `json:"query"`
	QueryID string    `json:"query_id"`
	Parent  string    `json:"parent,omitempty"`
	Section string    `json:"section,omitempty"`
	Depth   int       `json:"depth"`
	State   PageState `json:"state"`
	NodeID  string    `json:"node_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Err     string    `json:"error,omitempty"`
}
