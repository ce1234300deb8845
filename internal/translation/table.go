// Package translation loads word translation tables and applies them
// to query expansion and translation-based scoring.
package translation

import (
	"bufio"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-letor/internal/query"
)

// Translation is one target word with its probability.
type Translation struct {
	Word string
	Prob float64
}

// Table holds P(target | source). Read-only after loading.
type Table struct {
	probs  map[string]map[string]float64
	sorted map[string][]Translation
}

// Path returns the table file produced by the given training iteration.
func Path(rootDir string, iter int) string {
	return filepath.Join(rootDir, fmt.Sprintf("output.t1.%d", iter))
}

// Load reads "<source> <target> <probability>" lines from the iteration file
// under rootDir. Entries below minProb are dropped.
func Load(rootDir string, iter int, minProb float64) (*Table, error) {
	path := Path(rootDir, iter)
	rc, err := query.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t := newTable()
	scanner := bufio.NewScanner(rc)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: expected 3 columns, got %d", path, lineNum, len(parts))
		}
		p, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || p < 0 || p > 1 {
			return nil, fmt.Errorf("%s:%d: bad probability %q", path, lineNum, parts[2])
		}
		if p < minProb {
			continue
		}
		t.add(parts[0], parts[1], p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	t.finish()
	return t, nil
}

// New builds a table from source -> target -> probability.
func New(probs map[string]map[string]float64) *Table {
	t := newTable()
	for src, tgts := range probs {
		for tgt, p := range tgts {
			t.add(src, tgt, p)
		}
	}
	t.finish()
	return t
}

func newTable() *Table {
	return &Table{
		probs:  make(map[string]map[string]float64),
		sorted: make(map[string][]Translation),
	}
}

func (t *Table) add(src, tgt string, p float64) {
	m, ok := t.probs[src]
	if !ok {
		m = make(map[string]float64)
		t.probs[src] = m
	}
	m[tgt] = p
}

func (t *Table) finish() {
	for src, m := range t.probs {
		list := make([]Translation, 0, len(m))
		for w, p := range m {
			list = append(list, Translation{Word: w, Prob: p})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Prob != list[j].Prob {
				return list[i].Prob > list[j].Prob
			}
			return list[i].Word < list[j].Word
		})
		t.sorted[src] = list
	}
}

// Size returns the number of source words.
func (t *Table) Size() int { return len(t.probs) }

// Prob returns P(tgt | src), 0 when unknown.
func (t *Table) Prob(src, tgt string) float64 {
	return t.probs[src][tgt]
}

// Translations returns the translations of src, most probable first.
func (t *Table) Translations(src string) []Translation {
	return t.sorted[src]
}

// Expand returns up to qty words most strongly implied by terms, excluding
// the terms themselves. A word's weight is the mean of P(word | term) over terms.
func (t *Table) Expand(terms []string, qty int) []Translation {
	if qty <= 0 || len(terms) == 0 {
		return nil
	}

	inQuery := make(map[string]bool, len(terms))
	for _, q := range terms {
		inQuery[q] = true
	}

	weights := make(map[string]float64)
	for _, q := range terms {
		for _, tr := range t.sorted[q] {
			if !inQuery[tr.Word] {
				weights[tr.Word] += tr.Prob / float64(len(terms))
			}
		}
	}

	out := make([]Translation, 0, len(weights))
	for w, p := range weights {
		out = append(out, Translation{Word: w, Prob: p})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prob != out[j].Prob {
			return out[i].Prob > out[j].Prob
		}
		return out[i].Word < out[j].Word
	})
	if len(out) > qty {
		out = out[:qty]
	}
	return out
}

// floorProb keeps log-likelihoods finite for query terms no document word translates to.
const floorProb = 1e-9

// LogLikelihood is the IBM Model 1 log-probability of the query terms
// being generated by the document terms:
//
//	sum_q log( sum_d P(q | d) * tf(d) / |D| )
func (t *Table) LogLikelihood(queryTerms, docTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	tf := make(map[string]int, len(docTerms))
	for _, d := range docTerms {
		tf[d]++
	}
	docLen := float64(len(docTerms))

	var ll float64
	for _, q := range queryTerms {
		var p float64
		if docLen > 0 {
			for d, n := range tf {
				p += t.probs[d][q] * float64(n) / docLen
			}
		}
		ll += math.Log(max(p, floorProb))
	}
	return ll
}
