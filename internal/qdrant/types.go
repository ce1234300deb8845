// Package qdrant provides a wrapper around the Qdrant Go client
// with simplified APIs for document-vector collections.
package qdrant

// CollectionConfig defines the configuration for creating a Qdrant collection.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed with "letor_").
	Name string

	// VectorSize is the dimension of the document vectors.
	VectorSize uint64

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool

	// IndexingThreshold is the number of vectors before HNSW index is built.
	IndexingThreshold uint64
}

// DefaultCollectionConfig returns sensible defaults for a document collection.
func DefaultCollectionConfig(name string, dim int) CollectionConfig {
	return CollectionConfig{
		Name:              name,
		VectorSize:        uint64(dim),
		OnDiskPayload:     true,
		IndexingThreshold: 20000,
	}
}

// Point is one document vector to upsert.
type Point struct {
	// DocID is the external document id, kept in the payload.
	DocID string

	// Vector is the document embedding.
	Vector []float32
}

// SearchResult is a single nearest-neighbour hit.
type SearchResult struct {
	DocID string
	Score float32
}
