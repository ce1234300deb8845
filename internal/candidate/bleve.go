package candidate

import (
	"context"

	"github.com/ricesearch/rice-letor/internal/index"
	"github.com/ricesearch/rice-letor/internal/query"
	"github.com/ricesearch/rice-letor/internal/translation"
)

// BleveProvider searches the in-process inverted index. With a translation
// table it expands each query with the most probable translations of its terms.
type BleveProvider struct {
	store          *index.Store
	ownsStore      bool
	minShouldMatch int

	table      *translation.Table
	expandQty  int
	useWeights bool
}

// NewBleveProvider creates a plain inverted-index provider.
func NewBleveProvider(store *index.Store, ownsStore bool, minShouldMatchPct int) *BleveProvider {
	return &BleveProvider{store: store, ownsStore: ownsStore, minShouldMatch: minShouldMatchPct}
}

// NewExpandProvider creates a provider that adds expandQty translation terms to each query.
func NewExpandProvider(store *index.Store, ownsStore bool, minShouldMatchPct int, table *translation.Table, expandQty int, useWeights bool) *BleveProvider {
	p := NewBleveProvider(store, ownsStore, minShouldMatchPct)
	p.table = table
	p.expandQty = expandQty
	p.useWeights = useWeights
	return p
}

// Name returns the provider type.
func (p *BleveProvider) Name() string {
	if p.table != nil {
		return "bleve_expand"
	}
	return "bleve"
}

// Shared reports true: bleve indexes are safe for concurrent search.
func (p *BleveProvider) Shared() bool { return true }

// Close closes the index if this provider opened it.
func (p *BleveProvider) Close() error {
	if p.ownsStore {
		return p.store.Close()
	}
	return nil
}

// QueryTerms returns the weighted terms searched for a query text.
// The required match count is derived from the original terms only.
func (p *BleveProvider) QueryTerms(text string) ([]index.WeightedTerm, int) {
	terms := query.UniqueTerms(text)
	wts := make([]index.WeightedTerm, 0, len(terms)+p.expandQty)
	for _, t := range terms {
		wts = append(wts, index.WeightedTerm{Term: t, Weight: 1})
	}
	minMatch := index.MinShouldMatch(len(terms), p.minShouldMatch)

	if p.table != nil {
		for _, tr := range p.table.Expand(terms, p.expandQty) {
			w := 1.0
			if p.useWeights {
				w = tr.Prob
			}
			wts = append(wts, index.WeightedTerm{Term: tr.Word, Weight: w})
		}
	}
	return wts, minMatch
}

// Candidates searches the text field of the query.
func (p *BleveProvider) Candidates(ctx context.Context, _ int, fields query.Fields, maxQty int) (*Set, error) {
	terms, minMatch := p.QueryTerms(fields.Text(query.FieldText))

	hits, total, err := p.store.Search(ctx, terms, minMatch, maxQty)
	if err != nil {
		return nil, err
	}
	return setFromHits(hits, int(total)), nil
}

func setFromHits(hits []index.Hit, numFound int) *Set {
	s := &Set{Entries: make([]Entry, len(hits)), NumFound: numFound}
	for i, h := range hits {
		s.Entries[i] = Entry{DocID: h.DocID, Score: h.Score}
	}
	return s
}
