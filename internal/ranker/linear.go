package ranker

import (
	"slices"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-letor/internal/letor"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// Linear is a weighted sum of features. Feature ids are 1-based; id 0 is the bias.
type Linear struct {
	Bias    float64
	Weights map[int]float64
	ids     []int
	dim     int
}

// NewLinear creates a linear model from 1-based feature weights.
func NewLinear(bias float64, weights map[int]float64) *Linear {
	m := &Linear{Bias: bias, Weights: weights}
	for id := range weights {
		m.ids = append(m.ids, id)
	}
	slices.Sort(m.ids)
	if len(m.ids) > 0 {
		m.dim = m.ids[len(m.ids)-1]
	}
	return m
}

func parseLinear(body []byte) (*Linear, error) {
	weights := make(map[int]float64)
	var bias float64
	for _, tok := range strings.Fields(string(body)) {
		idStr, wStr, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, apperrors.ParseError("expected id:weight, got '"+tok+"'", nil)
		}
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			return nil, apperrors.ParseError("invalid feature id '"+idStr+"'", err)
		}
		w, err := strconv.ParseFloat(wStr, 64)
		if err != nil {
			return nil, apperrors.ParseError("invalid weight '"+wStr+"'", err)
		}
		if id == 0 {
			bias = w
		} else {
			weights[id] = w
		}
	}
	if len(weights) == 0 {
		return nil, apperrors.ParseError("no weights in linear model", nil)
	}
	return NewLinear(bias, weights), nil
}

// Score returns bias + sum(w_i * v_i). Features beyond the vector count as 0.
func (m *Linear) Score(v letor.Vector) (float64, error) {
	s := m.Bias
	for _, id := range m.ids {
		if id <= len(v) {
			s += m.Weights[id] * v[id-1]
		}
	}
	return s, nil
}

// Dim returns the highest feature id.
func (m *Linear) Dim() int { return m.dim }
