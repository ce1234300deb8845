// Package ranker loads learned ranking models and scores feature vectors with them.
package ranker

import (
	"bufio"
	"bytes"
	"os"
	"strings"

	"github.com/ricesearch/rice-letor/internal/letor"
	"github.com/ricesearch/rice-letor/internal/onnx"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// Model scores a feature vector. Implementations are safe for concurrent use.
type Model interface {
	Score(v letor.Vector) (float64, error)

	// Dim returns the number of features the model reads, or 0 when unknown.
	Dim() int
}

// Load reads a model file. Files ending in .onnx are evaluated with ONNX Runtime;
// anything else is parsed as a RankLib text model.
func Load(path string, rt *onnx.Runtime) (Model, error) {
	if strings.HasSuffix(strings.ToLower(path), ".onnx") {
		if rt == nil {
			return nil, apperrors.ConfigError("ONNX models need the ONNX runtime")
		}
		session, err := rt.LoadSession(path)
		if err != nil {
			return nil, err
		}
		return NewONNX(session), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "reading model file", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "parsing model file "+path, err)
	}
	return m, nil
}

// Parse reads a RankLib model from its text form.
func Parse(data []byte) (Model, error) {
	kind, body := splitHeader(data)
	switch kind {
	case "linear regression", "coordinate ascent":
		return parseLinear(body)
	case "lambdamart", "mart":
		return parseEnsembles(body, false)
	case "random forests":
		return parseEnsembles(body, true)
	case "":
		return nil, apperrors.ParseError("missing model header (e.g. '## LambdaMART')", nil)
	}
	return nil, apperrors.ParseError("unsupported model type: "+kind, nil)
}

// splitHeader returns the lowercased model name from the first "## " line
// and the file content without "##" lines.
func splitHeader(data []byte) (string, []byte) {
	var kind string
	var body bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") {
			if kind == "" {
				kind = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "##")))
			}
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	return kind, body.Bytes()
}
