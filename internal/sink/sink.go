// Package sink receives the ranked result sets produced for every query and size.
package sink

import (
	"context"
	"errors"

	"github.com/ricesearch/rice-letor/internal/candidate"
	"github.com/ricesearch/rice-letor/internal/letor"
	"github.com/ricesearch/rice-letor/internal/query"
)

// Result is one size bucket of one query, sorted best first.
type Result struct {
	QueryID string
	Fields  query.Fields
	Entries []candidate.Entry
	NumRet  int

	// Features holds the vectors of the last feature stage by document id; nil when
	// no reranking stage is configured.
	Features map[string]letor.Vector
}

// Sink consumes results. Emit calls are serialized by the caller.
type Sink interface {
	Emit(ctx context.Context, r Result) error
	Close() error
}

// Multi fans results out to several sinks in order.
type Multi []Sink

// Emit forwards r to every sink and stops at the first error.
func (m Multi) Emit(ctx context.Context, r Result) error {
	for _, s := range m {
		if err := s.Emit(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SummaryPublisher is implemented by sinks that forward run-level summaries.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary any) error
}

// PublishSummary hands summary to every sink in s that accepts summaries.
func PublishSummary(ctx context.Context, s Sink, summary any) error {
	if m, ok := s.(Multi); ok {
		var errs []error
		for _, inner := range m {
			errs = append(errs, PublishSummary(ctx, inner, summary))
		}
		return errors.Join(errs...)
	}
	if p, ok := s.(SummaryPublisher); ok {
		return p.PublishSummary(ctx, summary)
	}
	return nil
}
