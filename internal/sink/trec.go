package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qrels"
)

// TRECSink writes one TREC run file per result size and, when features and
// judgments are available, one SVMlight feature file per size.
type TRECSink struct {
	dir     string
	runName string
	qrels   *qrels.Qrels
	log     *logger.Logger

	runs  map[int]*outFile
	feats map[int]*outFile
}

type outFile struct {
	f *os.File
	w *bufio.Writer
}

func createFile(path string) (*outFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &outFile{f: f, w: bufio.NewWriter(f)}, nil
}

func (o *outFile) close() error {
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return err
	}
	return o.f.Close()
}

// RunFileName returns the name of the run file for size k.
func RunFileName(k int) string { return "trec_run_" + strconv.Itoa(k) }

// FeatureFileName returns the name of the feature file for size k.
func FeatureFileName(k int) string { return "letor_" + strconv.Itoa(k) + ".txt" }

// NewTRECSink creates dir and a run file for every size. judgments may be nil,
// in which case no feature files are written.
func NewTRECSink(dir, runName string, sizes []int, judgments *qrels.Qrels, log *logger.Logger) (*TRECSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "creating run directory", err)
	}

	s := &TRECSink{
		dir:     dir,
		runName: runName,
		qrels:   judgments,
		log:     log,
		runs:    make(map[int]*outFile, len(sizes)),
		feats:   make(map[int]*outFile),
	}
	for _, k := range sizes {
		f, err := createFile(filepath.Join(dir, RunFileName(k)))
		if err != nil {
			s.Close()
			return nil, apperrors.Wrap(apperrors.CodeConfig, "creating run file", err)
		}
		s.runs[k] = f
	}
	return s, nil
}

// Emit appends r to the run file of its size.
func (s *TRECSink) Emit(_ context.Context, r Result) error {
	run, ok := s.runs[r.NumRet]
	if !ok {
		return apperrors.InternalError(fmt.Sprintf("no run file for size %d", r.NumRet), nil)
	}

	for i, e := range r.Entries {
		if _, err := fmt.Fprintf(run.w, "%s Q0 %s %d %s %s\n",
			r.QueryID, e.DocID, i+1, strconv.FormatFloat(e.Score, 'g', -1, 64), s.runName); err != nil {
			return apperrors.InternalError("writing run file", err)
		}
	}

	if r.Features == nil || s.qrels == nil {
		return nil
	}
	return s.writeFeatures(r)
}

func (s *TRECSink) writeFeatures(r Result) error {
	out, ok := s.feats[r.NumRet]
	if !ok {
		var err error
		out, err = createFile(filepath.Join(s.dir, FeatureFileName(r.NumRet)))
		if err != nil {
			return apperrors.InternalError("creating feature file", err)
		}
		s.feats[r.NumRet] = out
	}

	var line strings.Builder
	for _, e := range r.Entries {
		grade, _ := s.qrels.Label(r.QueryID, e.DocID)
		line.Reset()
		fmt.Fprintf(&line, "%d qid:%s", grade, r.QueryID)
		for i, x := range r.Features[e.DocID] {
			fmt.Fprintf(&line, " %d:%s", i+1, strconv.FormatFloat(x, 'g', -1, 64))
		}
		fmt.Fprintf(&line, " # %s\n", e.DocID)
		if _, err := out.w.WriteString(line.String()); err != nil {
			return apperrors.InternalError("writing feature file", err)
		}
	}
	return nil
}

// Close flushes and closes all files.
func (s *TRECSink) Close() error {
	var firstErr error
	for _, group := range []map[int]*outFile{s.runs, s.feats} {
		for k, f := range group {
			if err := f.close(); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(group, k)
		}
	}
	if s.log != nil && firstErr == nil {
		s.log.Info("Run files written", "dir", s.dir, "run", s.runName)
	}
	return firstErr
}
