package sink

import (
	"context"

	"github.com/ricesearch/rice-letor/internal/evaluation"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

// EvalSink scores every result against relevance judgments and logs the
// per-size means at close.
type EvalSink struct {
	evaluator *evaluation.Evaluator
	log       *logger.Logger
}

// NewEvalSink wraps an evaluator.
func NewEvalSink(evaluator *evaluation.Evaluator, log *logger.Logger) *EvalSink {
	return &EvalSink{evaluator: evaluator, log: log}
}

// Emit evaluates the ranked documents of r at size r.NumRet.
func (s *EvalSink) Emit(_ context.Context, r Result) error {
	ids := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.DocID
	}
	s.evaluator.Add(r.QueryID, ids, r.NumRet)
	return nil
}

// Summaries returns the aggregate metrics per size, smallest size first.
func (s *EvalSink) Summaries() []evaluation.Summary {
	sizes := s.evaluator.Sizes()
	out := make([]evaluation.Summary, len(sizes))
	for i, k := range sizes {
		out[i] = s.evaluator.Summarize(k)
	}
	return out
}

// Close logs the summaries.
func (s *EvalSink) Close() error {
	for _, sum := range s.Summaries() {
		s.log.Info("Evaluation",
			"k", sum.K,
			"queries", sum.QueryCount,
			"ndcg", sum.MeanNDCG,
			"precision", sum.MeanPrecision,
			"recall", sum.MeanRecall,
			"mrr", sum.MeanMRR,
			"map", sum.MAP,
		)
	}
	return nil
}
