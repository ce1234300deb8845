package embed

import (
	"fmt"
	"path/filepath"

	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

// Set holds the regular and high-order embedding tables used by a run.
type Set struct {
	Regular   []*Embeddings
	HighOrder []*Embeddings

	cache *Cache
}

// LoadSet loads every named file from dir.
func LoadSet(dir string, files, highOrder []string, log *logger.Logger) (*Set, error) {
	s := &Set{cache: NewCache(0)}

	load := func(names []string) ([]*Embeddings, error) {
		var out []*Embeddings
		for _, name := range names {
			e, err := Load(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("loading embeddings %s: %w", name, err)
			}
			log.Info("Loaded word embeddings", "file", name, "words", e.Size(), "dim", e.Dim())
			out = append(out, e)
		}
		return out, nil
	}

	var err error
	if s.Regular, err = load(files); err != nil {
		return nil, err
	}
	if s.HighOrder, err = load(highOrder); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSet wraps already-loaded tables.
func NewSet(regular, highOrder []*Embeddings) *Set {
	return &Set{Regular: regular, HighOrder: highOrder, cache: NewCache(0)}
}

// Primary returns the first regular table, used for query and document vectors.
func (s *Set) Primary() *Embeddings {
	if s == nil || len(s.Regular) == 0 {
		return nil
	}
	return s.Regular[0]
}

// QueryVector returns the cached primary-table vector for a query text.
func (s *Set) QueryVector(text string) []float32 {
	p := s.Primary()
	if p == nil {
		return nil
	}
	return s.cache.GetOrCompute(text, p.TextVector)
}

// CacheStats returns the query vector cache statistics.
func (s *Set) CacheStats() CacheStats {
	return s.cache.Stats()
}
