// Package evaluation scores ranked result lists against relevance judgments.
package evaluation

import (
	"slices"
	"sync"

	"github.com/ricesearch/rice-letor/internal/qrels"
)

// Evaluator accumulates per-query metrics for every result size. Safe for concurrent use.
type Evaluator struct {
	judgments *qrels.Qrels
	minGrade  int

	mu      sync.Mutex
	results map[int][]*QueryResult
}

// NewEvaluator creates an evaluator. A document is relevant when its grade is at least minGrade.
func NewEvaluator(judgments *qrels.Qrels, minGrade int) *Evaluator {
	return &Evaluator{
		judgments: judgments,
		minGrade:  minGrade,
		results:   make(map[int][]*QueryResult),
	}
}

// Evaluate computes the metrics of one ranked list at size k.
func (e *Evaluator) Evaluate(queryID string, docIDs []string, k int) *QueryResult {
	relevances := make([]int, len(docIDs))
	for i, id := range docIDs {
		if g, ok := e.judgments.Label(queryID, id); ok {
			relevances[i] = g
		}
	}
	total := e.judgments.NumRelevant(queryID, e.minGrade)

	return &QueryResult{
		QueryID:     queryID,
		K:           k,
		NDCG:        NDCG(relevances, e.judgments.Grades(queryID), k),
		Recall:      Recall(relevances, k, e.minGrade, total),
		Precision:   Precision(relevances, k, e.minGrade),
		MRR:         MRR(relevances, e.minGrade),
		AP:          AveragePrecision(relevances, e.minGrade, total),
		ResultCount: len(docIDs),
	}
}

// Add evaluates a ranked list and keeps the result for Summarize.
func (e *Evaluator) Add(queryID string, docIDs []string, k int) *QueryResult {
	r := e.Evaluate(queryID, docIDs, k)

	e.mu.Lock()
	e.results[k] = append(e.results[k], r)
	e.mu.Unlock()
	return r
}

// Sizes returns the result sizes seen so far, ascending.
func (e *Evaluator) Sizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	sizes := make([]int, 0, len(e.results))
	for k := range e.results {
		sizes = append(sizes, k)
	}
	slices.Sort(sizes)
	return sizes
}

// Summarize aggregates the results added for size k.
func (e *Evaluator) Summarize(k int) Summary {
	e.mu.Lock()
	results := e.results[k]
	e.mu.Unlock()

	summary := Summary{K: k, QueryCount: len(results)}
	if len(results) == 0 {
		return summary
	}

	for _, r := range results {
		summary.MeanNDCG += r.NDCG
		summary.MeanRecall += r.Recall
		summary.MeanPrecision += r.Precision
		summary.MeanMRR += r.MRR
		summary.MAP += r.AP
	}

	n := float64(len(results))
	summary.MeanNDCG /= n
	summary.MeanRecall /= n
	summary.MeanPrecision /= n
	summary.MeanMRR /= n
	summary.MAP /= n
	return summary
}
