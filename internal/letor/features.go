package letor

import (
	"context"

	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/index"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/translation"
)

// tfidf scores each document against the query with the index relevance
// function and adds the fraction of query terms the document contains.
type tfidf struct {
	index *index.Store
}

func (f *tfidf) qty() int { return 2 }

func (f *tfidf) fill(ctx context.Context, b *batch, vecs map[string]Vector, offset int) error {
	unique := uniq(b.queryTerms)
	terms := make([]index.WeightedTerm, len(unique))
	for i, t := range unique {
		terms[i] = index.WeightedTerm{Term: t, Weight: 1}
	}

	scores, err := f.index.Scores(ctx, terms, b.docIDs)
	if err != nil {
		return apperrors.BackendError("scoring documents", err)
	}

	for _, id := range b.docIDs {
		v := vecs[id]
		v[offset] = scores[id]
		v[offset+1] = coverage(unique, b.docTerms[id])
	}
	return nil
}

func coverage(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	inDoc := make(map[string]bool, len(docTerms))
	for _, t := range docTerms {
		inDoc[t] = true
	}
	n := 0
	for _, t := range queryTerms {
		if inDoc[t] {
			n++
		}
	}
	return float64(n) / float64(len(queryTerms))
}

func uniq(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// embedCosine computes one query/document cosine per embedding table.
type embedCosine struct {
	tables []*embed.Embeddings
}

func (f *embedCosine) qty() int { return len(f.tables) }

func (f *embedCosine) fill(_ context.Context, b *batch, vecs map[string]Vector, offset int) error {
	for i, e := range f.tables {
		qv := e.Mean(b.queryTerms)
		for _, id := range b.docIDs {
			vecs[id][offset+i] = embed.Cosine(qv, e.Mean(b.docTerms[id]))
		}
	}
	return nil
}

// model1 is the IBM Model 1 log-likelihood of the query given the document,
// plus the same value normalized by query length.
type model1 struct {
	table *translation.Table
}

func (f *model1) qty() int { return 2 }

func (f *model1) fill(_ context.Context, b *batch, vecs map[string]Vector, offset int) error {
	for _, id := range b.docIDs {
		ll := f.table.LogLikelihood(b.queryTerms, b.docTerms[id])
		vecs[id][offset] = ll
		if n := len(b.queryTerms); n > 0 {
			vecs[id][offset+1] = ll / float64(n)
		}
	}
	return nil
}
