//go:build !cgo

package onnx

import (
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

func newRuntimeImpl(RuntimeConfig) (runtimeImpl, error) {
	return nil, apperrors.New(apperrors.CodeConfig, "ONNX Runtime needs a cgo build")
}
