package candidate

import (
	"context"
	"strings"

	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/index"
	"github.com/ricesearch/rice-letor/internal/qdrant"
	"github.com/ricesearch/rice-letor/internal/query"
)

// knnText concatenates the query fields used to build KNN query vectors.
func knnText(fields query.Fields, names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if v := fields.Text(n); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// QdrantProvider searches an external Qdrant collection. Each instance owns
// one gRPC connection and is used by a single worker.
type QdrantProvider struct {
	client     *qdrant.Client
	collection string
	emb        *embed.Set
	fields     []string
}

// NewQdrantProvider connects to the Qdrant service described by cfg.
func NewQdrantProvider(cfg qdrant.ClientConfig, collection string, emb *embed.Set, fields []string) (*QdrantProvider, error) {
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = index.DefaultCollection
	}
	return &QdrantProvider{client: client, collection: collection, emb: emb, fields: fields}, nil
}

// Name returns the provider type.
func (p *QdrantProvider) Name() string { return "qdrant" }

// Shared reports false: every worker gets its own connection.
func (p *QdrantProvider) Shared() bool { return false }

// Close closes the connection.
func (p *QdrantProvider) Close() error { return p.client.Close() }

// Candidates returns the nearest documents to the query vector.
func (p *QdrantProvider) Candidates(ctx context.Context, _ int, fields query.Fields, maxQty int) (*Set, error) {
	vec := p.emb.QueryVector(knnText(fields, p.fields))
	if len(vec) == 0 || maxQty <= 0 {
		return &Set{}, nil
	}

	res, err := p.client.Search(ctx, p.collection, vec, uint64(maxQty))
	if err != nil {
		return nil, err
	}

	set := &Set{Entries: make([]Entry, len(res)), NumFound: len(res)}
	for i, r := range res {
		set.Entries[i] = Entry{DocID: r.DocID, Score: float64(r.Score)}
	}
	return set, nil
}

// ChromemProvider runs exhaustive nearest-neighbour search in process.
type ChromemProvider struct {
	vectors *index.VectorCollection
	emb     *embed.Set
	fields  []string
}

// NewChromemProvider wraps an open vector collection.
func NewChromemProvider(vectors *index.VectorCollection, emb *embed.Set, fields []string) *ChromemProvider {
	return &ChromemProvider{vectors: vectors, emb: emb, fields: fields}
}

// Name returns the provider type.
func (p *ChromemProvider) Name() string { return "chromem" }

// Shared reports true: chromem collections are safe for concurrent queries.
func (p *ChromemProvider) Shared() bool { return true }

// Close is a no-op; persisted collections are written on insert.
func (p *ChromemProvider) Close() error { return nil }

// Candidates returns the nearest documents to the query vector.
func (p *ChromemProvider) Candidates(ctx context.Context, _ int, fields query.Fields, maxQty int) (*Set, error) {
	vec := p.emb.QueryVector(knnText(fields, p.fields))
	if len(vec) == 0 {
		return &Set{}, nil
	}

	hits, err := p.vectors.Query(ctx, vec, maxQty)
	if err != nil {
		return nil, err
	}
	return setFromHits(hits, len(hits)), nil
}
