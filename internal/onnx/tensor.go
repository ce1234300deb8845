package onnx

import (
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// Tensor is a row-major float32 tensor.
type Tensor struct {
	shape []int64
	data  []float32
}

// NewTensorFloat32 creates a tensor over data.
func NewTensorFloat32(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// FromRows packs equally long rows into a [len(rows), dim] tensor.
func FromRows(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, apperrors.ValidationError("no rows")
	}
	dim := len(rows[0])
	data := make([]float32, 0, len(rows)*dim)
	for _, r := range rows {
		if len(r) != dim {
			return nil, apperrors.ValidationError("rows differ in length")
		}
		for _, x := range r {
			data = append(data, float32(x))
		}
	}
	return NewTensorFloat32(data, []int64{int64(len(rows)), int64(dim)}), nil
}

// Shape returns the tensor shape.
func (t *Tensor) Shape() []int64 {
	return t.shape
}

// Float32Data returns the underlying data.
func (t *Tensor) Float32Data() []float32 {
	return t.data
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int64 {
	if len(t.shape) == 0 {
		return 0
	}

	n := int64(1)
	for _, dim := range t.shape {
		n *= dim
	}
	return n
}
