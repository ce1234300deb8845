// Package onnx provides ONNX Runtime integration for ranking model inference.
package onnx

import (
	"runtime"
	"sync"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	// LibraryPath is the onnxruntime shared library; empty means ONNX_RUNTIME_LIB or the working directory.
	LibraryPath    string
	IntraOpThreads int
}

// DefaultRuntimeConfig returns sensible defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{IntraOpThreads: min(runtime.NumCPU(), 8)}
}

// Runtime owns the ONNX Runtime environment and the sessions created in it.
type Runtime struct {
	mu       sync.Mutex
	cfg      RuntimeConfig
	impl     runtimeImpl
	sessions map[string]*Session
}

// runtimeImpl is the platform-specific runtime implementation.
type runtimeImpl interface {
	createSession(path string, cfg RuntimeConfig) (sessionImpl, error)
	close() error
}

// sessionImpl runs one model with a single float input and output.
type sessionImpl interface {
	run(input *Tensor) (*Tensor, error)
	inputDim() int64
	close() error
}

// NewRuntime initializes the ONNX Runtime environment.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	impl, err := newRuntimeImpl(cfg)
	if err != nil {
		return nil, err
	}
	return &Runtime{cfg: cfg, impl: impl, sessions: make(map[string]*Session)}, nil
}

// LoadSession loads the model at path, reusing an already loaded session.
func (r *Runtime) LoadSession(path string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[path]; ok {
		return s, nil
	}

	impl, err := r.impl.createSession(path, r.cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "loading ONNX model "+path, err)
	}
	s := &Session{path: path, impl: impl}
	r.sessions[path] = s
	return s, nil
}

// Close closes all sessions and the environment.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for path, s := range r.sessions {
		if err := s.Close(); err != nil {
			lastErr = err
		}
		delete(r.sessions, path)
	}
	if err := r.impl.close(); err != nil {
		lastErr = err
	}
	return lastErr
}
