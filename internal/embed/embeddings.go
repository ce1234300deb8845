// Package embed loads word embeddings and builds text vectors from them.
package embed

import (
	"bufio"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-letor/internal/query"
)

// Embeddings is a read-only word-vector table. Safe for concurrent use.
type Embeddings struct {
	name string
	dim  int
	vecs map[string][]float32
}

// New builds an embedding table from an in-memory map. All vectors must share one dimension.
func New(name string, vecs map[string][]float32) (*Embeddings, error) {
	e := &Embeddings{name: name, vecs: make(map[string][]float32, len(vecs))}
	for w, v := range vecs {
		if e.dim == 0 {
			e.dim = len(v)
		}
		if len(v) != e.dim || e.dim == 0 {
			return nil, fmt.Errorf("embedding %q: vector for %q has dimension %d, want %d", name, w, len(v), e.dim)
		}
		e.vecs[w] = v
	}
	return e, nil
}

// Load reads a word2vec text file: an optional "<count> <dim>" header
// followed by "<word> <v1> ... <vd>" lines.
func Load(path string) (*Embeddings, error) {
	rc, err := query.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	e := &Embeddings{name: filepath.Base(path), vecs: make(map[string][]float32)}

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if lineNum == 1 && len(parts) == 2 {
			if _, err := strconv.Atoi(parts[0]); err == nil {
				continue
			}
		}

		vec := make([]float32, len(parts)-1)
		for i, s := range parts[1:] {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad vector element %q", path, lineNum, s)
			}
			vec[i] = float32(f)
		}

		if e.dim == 0 {
			e.dim = len(vec)
		}
		if len(vec) != e.dim || e.dim == 0 {
			return nil, fmt.Errorf("%s:%d: dimension %d, want %d", path, lineNum, len(vec), e.dim)
		}
		e.vecs[parts[0]] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(e.vecs) == 0 {
		return nil, fmt.Errorf("%s: no word vectors", path)
	}

	return e, nil
}

// Name returns the source file name.
func (e *Embeddings) Name() string { return e.name }

// Dim returns the vector dimension.
func (e *Embeddings) Dim() int { return e.dim }

// Size returns the number of words.
func (e *Embeddings) Size() int { return len(e.vecs) }

// Lookup returns the vector for word.
func (e *Embeddings) Lookup(word string) ([]float32, bool) {
	v, ok := e.vecs[word]
	return v, ok
}

// Mean returns the L2-normalized mean of the known term vectors,
// or nil when no term is known.
func (e *Embeddings) Mean(terms []string) []float32 {
	sum := make([]float64, e.dim)
	n := 0
	for _, t := range terms {
		v, ok := e.vecs[t]
		if !ok {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}

	var norm float64
	for _, x := range sum {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil
	}

	out := make([]float32, e.dim)
	for i, x := range sum {
		out[i] = float32(x / norm)
	}
	return out
}

// TextVector tokenizes text and returns its mean vector.
func (e *Embeddings) TextVector(text string) []float32 {
	return e.Mean(query.Terms(text))
}

// Cosine returns the cosine similarity of a and b, 0 if either is empty or zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
