package ranker

import (
	"github.com/ricesearch/rice-letor/internal/letor"
	"github.com/ricesearch/rice-letor/internal/onnx"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// ONNX evaluates a model exported to ONNX with one [batch, features] input
// and one score per row. The session serializes concurrent calls.
type ONNX struct {
	session *onnx.Session
}

// NewONNX wraps a loaded session.
func NewONNX(session *onnx.Session) *ONNX {
	return &ONNX{session: session}
}

// Score runs the model on a single vector.
func (m *ONNX) Score(v letor.Vector) (float64, error) {
	in, err := onnx.FromRows([][]float64{v})
	if err != nil {
		return 0, err
	}
	out, err := m.session.Run(in)
	if err != nil {
		return 0, err
	}
	data := out.Float32Data()
	if len(data) == 0 {
		return 0, apperrors.BackendError("ONNX model returned no score", nil)
	}
	return float64(data[0]), nil
}

// Dim returns the model input width, 0 when dynamic.
func (m *ONNX) Dim() int {
	return max(int(m.session.InputDim()), 0)
}
