package sink

import (
	"context"

	"github.com/ricesearch/rice-letor/internal/bus"
)

// ScoredDoc is one ranked document of a published result.
type ScoredDoc struct {
	DocID     string  `json:"doc_id"`
	Rank      int     `json:"rank"`
	Score     float64 `json:"score"`
	OrigRank  int     `json:"orig_rank"`
	OrigScore float64 `json:"orig_score"`
}

// ResultPayload is the payload of a letor.result event.
type ResultPayload struct {
	QueryID string      `json:"query_id"`
	NumRet  int         `json:"num_ret"`
	Docs    []ScoredDoc `json:"docs"`
}

// BusSink publishes every result as an event keyed by query id.
type BusSink struct {
	pub    bus.Publisher
	topic  string
	source string
}

// NewBusSink publishes to topic; source names the run.
func NewBusSink(pub bus.Publisher, topic, source string) *BusSink {
	return &BusSink{pub: pub, topic: topic, source: source}
}

// Emit publishes r.
func (s *BusSink) Emit(ctx context.Context, r Result) error {
	payload := ResultPayload{QueryID: r.QueryID, NumRet: r.NumRet, Docs: make([]ScoredDoc, len(r.Entries))}
	for i, e := range r.Entries {
		payload.Docs[i] = ScoredDoc{DocID: e.DocID, Rank: i + 1, Score: e.Score, OrigRank: e.OrigRank, OrigScore: e.OrigScore}
	}
	return s.pub.Publish(ctx, s.topic, bus.NewEvent(bus.TypeResult, s.source, r.QueryID, payload))
}

// PublishSummary publishes a run-level summary once the run has finished.
func (s *BusSink) PublishSummary(ctx context.Context, summary any) error {
	return s.pub.Publish(ctx, s.topic, bus.NewEvent(bus.TypeRunSummary, s.source, s.source, summary))
}

// Close closes the publisher.
func (s *BusSink) Close() error {
	return s.pub.Close()
}
