// Package letor builds learning-to-rank feature vectors for query/document pairs.
package letor

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// Vector is a dense feature vector.
type Vector []float64

// Dot returns the dot product of v and w. Both must have the same length.
func (v Vector) Dot(w Vector) float64 {
	var sum float64
	for i := range v {
		sum += v[i] * w[i]
	}
	return sum
}

// WithRankScore returns a copy of v prefixed with the original rank and score.
func (v Vector) WithRankScore(origRank int, origScore float64) Vector {
	out := make(Vector, 0, len(v)+2)
	out = append(out, float64(origRank), origScore)
	return append(out, v...)
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// ReadWeights reads a weight vector: whitespace-separated numbers, with
// everything after '#' on a line ignored.
func ReadWeights(path string) (Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "opening weights file", err)
	}
	defer f.Close()

	var w Vector
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, tok := range strings.Fields(text) {
			x, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, apperrors.ConfigErrorf("%s:%d: invalid weight '%s'", path, line, tok)
			}
			w = append(w, x)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "reading weights file", err)
	}
	if len(w) == 0 {
		return nil, apperrors.ConfigErrorf("no weights in %s", path)
	}
	return w, nil
}

// CheckWeights verifies that w matches the extractor's feature count.
func CheckWeights(w Vector, featureQty int) error {
	if len(w) != featureQty {
		return apperrors.ConfigErrorf("the number of weights (%d) doesn't match the number of features (%d)", len(w), featureQty)
	}
	return nil
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, " "))
}
