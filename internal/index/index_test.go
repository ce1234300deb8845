package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qdrant"
)

var testDocs = []*Document{
	{ID: "d1", Text: "the cat sat on the mat"},
	{ID: "d2", Text: "dogs chase cats"},
	{ID: "d3", Text: "an unrelated document about cars"},
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemOnly()
	if err != nil {
		t.Fatalf("NewMemOnly() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Add(testDocs); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return s
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	sort.Strings(ids)
	return ids
}

func TestStoreSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hits, total, err := s.Search(ctx, []WeightedTerm{{Term: "cat", Weight: 1}}, 0, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if total != 2 || !reflect.DeepEqual(hitIDs(hits), []string{"d1", "d2"}) {
		t.Errorf("Search(cat) = %v (total %d), want d1, d2", hitIDs(hits), total)
	}

	hits, _, err = s.Search(ctx, []WeightedTerm{{Term: "cat", Weight: 1}, {Term: "dog", Weight: 1}}, 2, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !reflect.DeepEqual(hitIDs(hits), []string{"d2"}) {
		t.Errorf("Search(cat dog, min 2) = %v, want d2", hitIDs(hits))
	}

	hits, total, err = s.Search(ctx, []WeightedTerm{{Term: "cat", Weight: 1}}, 0, 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || total != 2 {
		t.Errorf("Search(size 1) returned %d hits, total %d; want 1, 2", len(hits), total)
	}

	hits, total, err = s.Search(ctx, nil, 0, 10)
	if err != nil || hits != nil || total != 0 {
		t.Errorf("Search(no terms) = %v, %d, %v", hits, total, err)
	}
}

func TestStoreScoresAndTexts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	scores, err := s.Scores(ctx, []WeightedTerm{{Term: "cat", Weight: 1}}, []string{"d1", "d3"})
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}
	if _, ok := scores["d1"]; !ok || len(scores) != 1 {
		t.Errorf("Scores() = %v, want only d1", scores)
	}

	texts, err := s.Texts(ctx, []string{"d1", "missing"})
	if err != nil {
		t.Fatalf("Texts() error = %v", err)
	}
	if texts["d1"] != "the cat sat on the mat" || len(texts) != 1 {
		t.Errorf("Texts() = %v", texts)
	}

	n, err := s.Count()
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3", n, err)
	}
}

func TestStoreForEach(t *testing.T) {
	s := newTestStore(t)

	var seen []string
	pages := 0
	err := s.ForEach(context.Background(), 2, func(docs []*Document) error {
		pages++
		for _, d := range docs {
			seen = append(seen, d.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	if pages != 2 || !reflect.DeepEqual(seen, []string{"d1", "d2", "d3"}) {
		t.Errorf("ForEach() visited %v in %d pages", seen, pages)
	}
}

func TestMinShouldMatch(t *testing.T) {
	tests := []struct{ n, pct, want int }{
		{4, 0, 0},
		{4, 50, 2},
		{3, 50, 1},
		{5, 99, 4},
	}
	for _, tt := range tests {
		if got := MinShouldMatch(tt.n, tt.pct); got != tt.want {
			t.Errorf("MinShouldMatch(%d, %d) = %d, want %d", tt.n, tt.pct, got, tt.want)
		}
	}
}

func TestComputeVectors(t *testing.T) {
	emb, err := embed.New("test", map[string][]float32{"cat": {1, 0}, "dog": {0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	docs := make([]*Document, 70)
	for i := range docs {
		text := "cat"
		if i%2 == 1 {
			text = "dog"
		}
		if i == 69 {
			text = "unknown"
		}
		docs[i] = &Document{ID: fmt.Sprintf("d%d", i), Text: text}
	}

	for _, workers := range []int{1, 3} {
		got, err := computeVectors(context.Background(), emb, docs, workers)
		if err != nil {
			t.Fatalf("computeVectors() error = %v", err)
		}
		if len(got) != len(docs) {
			t.Fatalf("len = %d, want %d", len(got), len(docs))
		}
		for i, dv := range got {
			if dv.id != docs[i].ID {
				t.Fatalf("workers=%d: vector %d has id %s, want %s", workers, i, dv.id, docs[i].ID)
			}
		}
		if !reflect.DeepEqual(got[1].vec, []float32{0, 1}) {
			t.Errorf("d1 vector = %v", got[1].vec)
		}
		if len(got[69].vec) != 0 {
			t.Errorf("vector of unknown words = %v, want empty", got[69].vec)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := computeVectors(ctx, emb, docs, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("computeVectors() error = %v, want context.Canceled", err)
	}
}

type fakePointWriter struct {
	collections []qdrant.CollectionConfig
	points      []qdrant.Point
}

func (f *fakePointWriter) EnsureCollection(_ context.Context, cfg qdrant.CollectionConfig) error {
	f.collections = append(f.collections, cfg)
	return nil
}

func (f *fakePointWriter) UpsertPoints(_ context.Context, _ string, points []qdrant.Point) error {
	f.points = append(f.points, points...)
	return nil
}

type fakeTextWriter struct {
	schema  bool
	batches int
	docs    []*Document
}

func (f *fakeTextWriter) EnsureSchema(context.Context) error {
	f.schema = true
	return nil
}

func (f *fakeTextWriter) AddDocuments(_ context.Context, docs []*Document) error {
	f.batches++
	f.docs = append(f.docs, docs...)
	return nil
}

const docFile = `<DOC>
<DOCNO>d1</DOCNO>
<text>cat mat</text>
</DOC>
<DOC>
<DOCNO>d2</DOCNO>
<text>dog</text>
</DOC>
<DOC>
<DOCNO>d3</DOCNO>
<text>zebra</text>
</DOC>
`

func TestBuilder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.txt")
	if err := os.WriteFile(path, []byte(docFile), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	store, err := NewMemOnly()
	if err != nil {
		t.Fatalf("NewMemOnly() error = %v", err)
	}
	defer store.Close()

	vectors, err := OpenVectorCollection("", "test")
	if err != nil {
		t.Fatalf("OpenVectorCollection() error = %v", err)
	}

	emb, err := embed.New("test", map[string][]float32{"cat": {1, 0}, "dog": {0, 1}})
	if err != nil {
		t.Fatalf("embed.New() error = %v", err)
	}

	points := &fakePointWriter{}
	texts := &fakeTextWriter{}
	b, err := NewBuilder(BuilderConfig{BatchSize: 2, Collection: "test"}, store,
		Targets{Vectors: vectors, Points: points, Texts: texts}, emb, logger.Discard())
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// d3 has no known terms and gets no vector
	if res.Indexed != 3 || res.Vectors != 2 {
		t.Errorf("Build() = %+v, want 3 indexed, 2 vectors", res)
	}
	if n, _ := store.Count(); n != 3 {
		t.Errorf("store.Count() = %d, want 3", n)
	}
	if vectors.Count() != 2 || len(points.points) != 2 {
		t.Errorf("vectors = %d, points = %d, want 2, 2", vectors.Count(), len(points.points))
	}
	if !texts.schema || len(texts.docs) != 3 || texts.batches != 2 {
		t.Errorf("text writer: schema=%v docs=%d batches=%d", texts.schema, len(texts.docs), texts.batches)
	}
	if len(points.collections) != 1 || points.collections[0].VectorSize != 2 {
		t.Errorf("EnsureCollection calls = %+v", points.collections)
	}

	hits, err := vectors.Query(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 2 || hits[0].DocID != "d1" {
		t.Errorf("Query() = %+v, want d1 first", hits)
	}
}

func TestBuilderNeedsEmbeddings(t *testing.T) {
	store, _ := NewMemOnly()
	defer store.Close()

	if _, err := NewBuilder(BuilderConfig{}, store, Targets{Points: &fakePointWriter{}}, nil, logger.Discard()); err == nil {
		t.Error("NewBuilder() expected error without embeddings")
	}
}

func TestFillVectors(t *testing.T) {
	store := newTestStore(t)
	vectors, _ := OpenVectorCollection("", "fill")
	emb, _ := embed.New("test", map[string][]float32{"cat": {1, 0}, "dogs": {0, 1}})

	b, err := NewBuilder(BuilderConfig{BatchSize: 2}, store, Targets{Vectors: vectors}, emb, logger.Discard())
	if err != nil {
		t.Fatalf("NewBuilder() error = %v", err)
	}

	res, err := b.FillVectors(context.Background())
	if err != nil {
		t.Fatalf("FillVectors() error = %v", err)
	}
	if res.Indexed != 3 || res.Vectors != 2 {
		t.Errorf("FillVectors() = %+v, want 3 visited, 2 vectors", res)
	}
}
