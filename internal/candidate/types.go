// Package candidate defines candidate sets and the retrieval backends that produce them.
package candidate

import (
	"context"

	"github.com/ricesearch/rice-letor/internal/query"
)

// Entry is one retrieved document. OrigRank and OrigScore are set once,
// right after retrieval; Score is overwritten by each rerank stage.
type Entry struct {
	DocID      string  `json:"doc_id"`
	Score      float64 `json:"score"`
	OrigScore  float64 `json:"orig_score"`
	OrigRank   int     `json:"orig_rank"`
	IsRelevant bool    `json:"is_relevant"`
}

// Set is an ordered candidate list plus the number of matches the backend found,
// which may exceed len(Entries).
type Set struct {
	Entries  []Entry
	NumFound int
}

// Clamp enforces len(Entries) <= maxQty and NumFound >= len(Entries).
func (s *Set) Clamp(maxQty int) {
	if maxQty >= 0 && len(s.Entries) > maxQty {
		s.Entries = s.Entries[:maxQty]
	}
	if s.NumFound < len(s.Entries) {
		s.NumFound = len(s.Entries)
	}
}

// SnapshotOriginal records each entry's current position and score as its original rank and score.
func (s *Set) SnapshotOriginal() {
	for i := range s.Entries {
		s.Entries[i].OrigRank = i
		s.Entries[i].OrigScore = s.Entries[i].Score
	}
}

// Provider retrieves candidates for a query.
type Provider interface {
	// Name returns the provider type.
	Name() string

	// Candidates returns at most maxQty candidates, best first.
	Candidates(ctx context.Context, queryNum int, fields query.Fields, maxQty int) (*Set, error)

	// Shared reports whether one instance may serve all workers concurrently.
	Shared() bool

	// Close releases the backend.
	Close() error
}
