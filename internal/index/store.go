package index

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	// FieldText is the analyzed and stored document text field.
	FieldText = "text"

	defaultAnalyzer = en.AnalyzerName
)

// Hit is one search result.
type Hit struct {
	DocID string
	Score float64
}

// WeightedTerm is a query term with its boost.
type WeightedTerm struct {
	Term   string
	Weight float64
}

// Store is a bleve index used both for retrieval and as a forward index.
// Safe for concurrent use.
type Store struct {
	idx bleve.Index
}

func newMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = defaultAnalyzer
	textField.Store = true
	textField.IncludeTermVectors = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(FieldText, textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	m.DefaultAnalyzer = defaultAnalyzer
	return m
}

// Open opens an existing index.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	return &Store{idx: idx}, nil
}

// Create creates a new index at path, or opens it if it already exists.
func Create(path string) (*Store, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &Store{idx: idx}, nil
	}
	idx, err = bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index %s: %w", path, err)
	}
	return &Store{idx: idx}, nil
}

// NewMemOnly creates an in-memory index.
func NewMemOnly() (*Store, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, err
	}
	return &Store{idx: idx}, nil
}

// Close closes the index.
func (s *Store) Close() error {
	return s.idx.Close()
}

// Count returns the number of indexed documents.
func (s *Store) Count() (uint64, error) {
	return s.idx.DocCount()
}

// Add indexes a batch of documents.
func (s *Store) Add(docs []*Document) error {
	b := s.idx.NewBatch()
	for _, d := range docs {
		if err := b.Index(d.ID, map[string]any{FieldText: d.Text}); err != nil {
			return fmt.Errorf("indexing %s: %w", d.ID, err)
		}
	}
	return s.idx.Batch(b)
}

// MinShouldMatch converts a percentage of n query terms into a term count.
func MinShouldMatch(n, pct int) int {
	return n * pct / 100
}

// termsQuery builds a disjunction of per-term match queries.
func termsQuery(terms []WeightedTerm, minMatch int) bquery.Query {
	qs := make([]bquery.Query, 0, len(terms))
	for _, t := range terms {
		q := bleve.NewMatchQuery(t.Term)
		q.SetField(FieldText)
		if t.Weight != 0 && t.Weight != 1 {
			q.SetBoost(t.Weight)
		}
		qs = append(qs, q)
	}
	dq := bleve.NewDisjunctionQuery(qs...)
	if minMatch > 0 {
		dq.SetMin(float64(minMatch))
	}
	return dq
}

// Search returns up to size documents matching at least minMatch of the terms
// (any term when minMatch is 0), best first, plus the total number of matches.
func (s *Store) Search(ctx context.Context, terms []WeightedTerm, minMatch, size int) ([]Hit, uint64, error) {
	if len(terms) == 0 || size <= 0 {
		return nil, 0, nil
	}

	req := bleve.NewSearchRequestOptions(termsQuery(terms, minMatch), size, 0, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{DocID: h.ID, Score: h.Score})
	}
	return hits, res.Total, nil
}

// Scores returns the relevance scores of the given documents for terms.
// Documents that match no term are absent from the result.
func (s *Store) Scores(ctx context.Context, terms []WeightedTerm, docIDs []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(docIDs))
	if len(terms) == 0 || len(docIDs) == 0 {
		return scores, nil
	}

	q := bleve.NewConjunctionQuery(bleve.NewDocIDQuery(docIDs), termsQuery(terms, 0))
	req := bleve.NewSearchRequestOptions(q, len(docIDs), 0, false)

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, h := range res.Hits {
		scores[h.ID] = h.Score
	}
	return scores, nil
}

// Texts returns the stored text of the given documents.
// Unknown ids are absent from the result.
func (s *Store) Texts(ctx context.Context, docIDs []string) (map[string]string, error) {
	texts := make(map[string]string, len(docIDs))
	if len(docIDs) == 0 {
		return texts, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery(docIDs), len(docIDs), 0, false)
	req.Fields = []string{FieldText}

	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, h := range res.Hits {
		if text, ok := h.Fields[FieldText].(string); ok {
			texts[h.ID] = text
		} else {
			texts[h.ID] = ""
		}
	}
	return texts, nil
}

// ForEach calls fn for every stored document, in id order, pageSize documents at a time.
func (s *Store) ForEach(ctx context.Context, pageSize int, fn func([]*Document) error) error {
	if pageSize <= 0 {
		pageSize = 500
	}

	var after []string
	for {
		req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), pageSize, 0, false)
		req.Fields = []string{FieldText}
		req.SortBy([]string{"_id"})
		if after != nil {
			req.SetSearchAfter(after)
		}

		res, err := s.idx.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}

		docs := make([]*Document, 0, len(res.Hits))
		for _, h := range res.Hits {
			text, _ := h.Fields[FieldText].(string)
			docs = append(docs, &Document{ID: h.ID, Text: text})
		}
		if err := fn(docs); err != nil {
			return err
		}
		if len(res.Hits) < pageSize {
			return nil
		}
		after = []string{res.Hits[len(res.Hits)-1].ID}
	}
}
