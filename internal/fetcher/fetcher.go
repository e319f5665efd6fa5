package fetcher

import (
	"context"

	"github.com/IshaanNene/voyagegraph/internal/types"
)

// Resource kinds, used for logging and metrics labels.
const (
	KindPageHTML  = "html"
	KindCanonical = "canonical"
	KindSummary   = "summary"
)

// Request describes one upstream GET.
type Request struct {
	URL    string
	Accept string
	Kind   string
}

// Fetcher retrieves upstream resources.
type Fetcher interface {
	// Fetch performs a single attempt; callers decide what a failure means.
	Fetch(ctx context.Context, req Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error
}
