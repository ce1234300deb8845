//go:build cgo

package onnx

import (
	"fmt"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

type cgoRuntime struct{}

var _ runtimeImpl = (*cgoRuntime)(nil)

func newRuntimeImpl(cfg RuntimeConfig) (runtimeImpl, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = findLibraryPath()
	}
	if libPath == "" {
		return nil, fmt.Errorf("ONNX Runtime shared library not found (set ONNX_RUNTIME_LIB)")
	}

	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}
	return &cgoRuntime{}, nil
}

func (c *cgoRuntime) createSession(path string, cfg RuntimeConfig) (sessionImpl, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file not found: %s", path)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("a ranking model needs one input and at least one output, got %d and %d",
			len(inputs), len(outputs))
	}
	dims := inputs[0].Dimensions
	if len(dims) != 2 {
		return nil, fmt.Errorf("model input %s must be [batch, features], got %v", inputs[0].Name, dims)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ORT session: %w", err)
	}
	return &cgoSession{session: session, dim: dims[1]}, nil
}

func (c *cgoRuntime) close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

type cgoSession struct {
	session *ort.DynamicAdvancedSession
	dim     int64
}

func (s *cgoSession) inputDim() int64 { return s.dim }

func (s *cgoSession) run(input *Tensor) (*Tensor, error) {
	in, err := ort.NewTensor(ort.NewShape(input.Shape()...), input.Float32Data())
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("run failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unsupported output tensor type %T", outputs[0])
	}
	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())
	return NewTensorFloat32(data, []int64(out.GetShape())), nil
}

func (s *cgoSession) close() error {
	return s.session.Destroy()
}

func findLibraryPath() string {
	if env := os.Getenv("ONNX_RUNTIME_LIB"); env != "" {
		return env
	}
	lib := "onnxruntime.dll"
	switch runtime.GOOS {
	case "linux":
		lib = "libonnxruntime.so"
	case "darwin":
		lib = "libonnxruntime.dylib"
	}
	if _, err := os.Stat(lib); err == nil {
		return lib
	}
	return ""
}
