package engine

import (
	"sync"

	"github.com/IshaanNene/voyagegraph/internal/graph"
)

// VisitedSet tracks page names already claimed by a traversal. Names are
// compared after graph.NormalizeName, so "Central_Europe" and
// "central europe" collapse to one entry.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates a VisitedSet with the given estimated capacity.
func NewVisitedSet(estimatedCapacity int) *VisitedSet {
	return &VisitedSet{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// MarkIfNew claims name and reports whether it was unclaimed. The check
// and the mark happen under one lock, so of several concurrent callers
// exactly one wins.
func (v *VisitedSet) MarkIfNew(name string) bool {
	key := graph.NormalizeName(name)
	if key == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Count returns the number of claimed names.
func (v *VisitedSet) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
