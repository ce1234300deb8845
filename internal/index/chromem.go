package index

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/philippgille/chromem-go"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "documents"

// ErrEmptyCollection is returned by ReadVectorCollection when the collection
// does not exist or holds no vectors.
var ErrEmptyCollection = errors.New("vector collection is missing or empty")

var errNoEmbedder = errors.New("chromem: documents and queries must carry precomputed vectors")

// precomputed is the embedding function of collections whose vectors are supplied by the caller.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// VectorCollection is a chromem collection of document vectors.
type VectorCollection struct {
	db  *chromem.DB
	col *chromem.Collection
}

// OpenVectorCollection opens or creates a chromem collection persisted under dir.
// An empty dir keeps the collection in memory. Used when building the index.
func OpenVectorCollection(dir, name string) (*VectorCollection, error) {
	if name == "" {
		name = DefaultCollection
	}

	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db %s: %w", dir, err)
		}
	}

	col, err := db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return &VectorCollection{db: db, col: col}, nil
}

// ReadVectorCollection opens an existing, non-empty collection persisted under dir.
// A missing dir is reported with an error wrapping fs.ErrNotExist.
func ReadVectorCollection(dir, name string) (*VectorCollection, error) {
	if name == "" {
		name = DefaultCollection
	}
	if dir == "" {
		return nil, fmt.Errorf("chromem db: %w", os.ErrNotExist)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("chromem db %s: %w", dir, err)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db %s: %w", dir, err)
	}
	col := db.GetCollection(name, precomputed)
	if col == nil || col.Count() == 0 {
		return nil, fmt.Errorf("collection %s in %s: %w", name, dir, ErrEmptyCollection)
	}
	return &VectorCollection{db: db, col: col}, nil
}

// Count returns the number of stored vectors.
func (v *VectorCollection) Count() int {
	return v.col.Count()
}

// Add stores document vectors. Entries with empty vectors are skipped.
func (v *VectorCollection) Add(ctx context.Context, ids []string, vectors [][]float32, concurrency int) error {
	docs := make([]chromem.Document, 0, len(ids))
	for i, id := range ids {
		if len(vectors[i]) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{ID: id, Embedding: vectors[i]})
	}
	if len(docs) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if err := v.col.AddDocuments(ctx, docs, concurrency); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Query returns the k most similar documents to vec by exhaustive comparison.
func (v *VectorCollection) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	// chromem requires k <= document count
	if n := v.col.Count(); k > n {
		k = n
	}
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}

	res, err := v.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, len(res))
	for i, r := range res {
		hits[i] = Hit{DocID: r.ID, Score: float64(r.Similarity)}
	}
	return hits, nil
}
