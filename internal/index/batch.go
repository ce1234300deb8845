package index

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-letor/internal/embed"
)

const (
	// DefaultBatchSize is the number of documents added to the index at once.
	DefaultBatchSize = 256

	// DefaultWorkers is the number of goroutines computing document vectors.
	DefaultWorkers = 4

	vectorChunk = 32
)

type docVector struct {
	id  string
	vec []float32
}

// computeVectors embeds docs in chunks spread over workers goroutines.
// The result keeps the order of docs; documents without known words get an empty vector.
func computeVectors(ctx context.Context, emb *embed.Embeddings, docs []*Document, workers int) ([]docVector, error) {
	out := make([]docVector, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for start := 0; start < len(docs); start += vectorChunk {
		end := min(start+vectorChunk, len(docs))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = docVector{id: docs[i].ID, vec: emb.TextVector(docs[i].Text)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
