package onnx

import (
	"sync"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// Session is a loaded model. Run calls are serialized.
type Session struct {
	mu     sync.Mutex
	path   string
	impl   sessionImpl
	closed bool
}

// Path returns the model path.
func (s *Session) Path() string {
	return s.path
}

// InputDim returns the model's feature dimension, or -1 when it is dynamic.
func (s *Session) InputDim() int64 {
	return s.impl.inputDim()
}

// Run evaluates the model on a [batch, dim] input.
func (s *Session) Run(input *Tensor) (*Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.New(apperrors.CodeInternal, "session is closed")
	}
	out, err := s.impl.run(input)
	if err != nil {
		return nil, apperrors.BackendError("ONNX inference failed", err)
	}
	return out, nil
}

// Close releases the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.impl.close()
}
