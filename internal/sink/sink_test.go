package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ricesearch/rice-letor/internal/bus"
	"github.com/ricesearch/rice-letor/internal/candidate"
	"github.com/ricesearch/rice-letor/internal/evaluation"
	"github.com/ricesearch/rice-letor/internal/letor"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qrels"
)

var testEntries = []candidate.Entry{
	{DocID: "d2", Score: 2.5, OrigRank: 1, OrigScore: 1},
	{DocID: "d1", Score: 1, OrigRank: 0, OrigScore: 3},
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

func TestTRECSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	judgments := qrels.New(map[string]map[string]int{"q1": {"d1": 2}})

	s, err := NewTRECSink(dir, "myrun", []int{1, 2}, judgments, logger.Discard())
	if err != nil {
		t.Fatalf("NewTRECSink() error = %v", err)
	}

	ctx := context.Background()
	if err := s.Emit(ctx, Result{QueryID: "q1", Entries: testEntries[:1], NumRet: 1}); err != nil {
		t.Fatalf("Emit(1) error = %v", err)
	}
	features := map[string]letor.Vector{"d1": {0.5, 1}, "d2": {-1, 0}}
	if err := s.Emit(ctx, Result{QueryID: "q1", Entries: testEntries, NumRet: 2, Features: features}); err != nil {
		t.Fatalf("Emit(2) error = %v", err)
	}
	if err := s.Emit(ctx, Result{QueryID: "q1", NumRet: 3}); err == nil {
		t.Error("Emit() for an unknown size should fail")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got, want := readFile(t, filepath.Join(dir, "trec_run_1")), "q1 Q0 d2 1 2.5 myrun\n"; got != want {
		t.Errorf("run 1 = %q, want %q", got, want)
	}
	if got, want := readFile(t, filepath.Join(dir, "trec_run_2")), "q1 Q0 d2 1 2.5 myrun\nq1 Q0 d1 2 1 myrun\n"; got != want {
		t.Errorf("run 2 = %q, want %q", got, want)
	}
	if got, want := readFile(t, filepath.Join(dir, "letor_2.txt")), "0 qid:q1 1:-1 2:0 # d2\n2 qid:q1 1:0.5 2:1 # d1\n"; got != want {
		t.Errorf("features = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "letor_1.txt")); !os.IsNotExist(err) {
		t.Error("feature file written for a result without features")
	}
}

func TestTRECSinkWithoutQrels(t *testing.T) {
	dir := t.TempDir()
	s, err := NewTRECSink(dir, "r", []int{2}, nil, nil)
	if err != nil {
		t.Fatalf("NewTRECSink() error = %v", err)
	}
	err = s.Emit(context.Background(), Result{QueryID: "q", Entries: testEntries, NumRet: 2,
		Features: map[string]letor.Vector{"d1": {1}, "d2": {2}}})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	s.Close()
	if _, err := os.Stat(filepath.Join(dir, "letor_2.txt")); !os.IsNotExist(err) {
		t.Error("feature file written without judgments")
	}
}

func TestEvalSink(t *testing.T) {
	judgments := qrels.New(map[string]map[string]int{"q1": {"d1": 1}})
	s := NewEvalSink(evaluation.NewEvaluator(judgments, 1), logger.Discard())

	ctx := context.Background()
	s.Emit(ctx, Result{QueryID: "q1", Entries: testEntries[:1], NumRet: 1})
	s.Emit(ctx, Result{QueryID: "q1", Entries: testEntries, NumRet: 2})

	sums := s.Summaries()
	if len(sums) != 2 || sums[0].K != 1 || sums[1].K != 2 {
		t.Fatalf("Summaries() = %+v", sums)
	}
	if sums[0].MeanPrecision != 0 || sums[1].MeanPrecision != 0.5 || sums[1].MeanMRR != 0.5 {
		t.Errorf("Summaries() = %+v", sums)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestBusSink(t *testing.T) {
	b := bus.NewMemoryBus(logger.Discard())

	var mu sync.Mutex
	var got []bus.Event
	var wg sync.WaitGroup
	wg.Add(2)
	b.Subscribe(context.Background(), "results", func(_ context.Context, e bus.Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		wg.Done()
		return nil
	})

	s := NewBusSink(b, "results", "run-1")
	if err := s.Emit(context.Background(), Result{QueryID: "q9", Entries: testEntries, NumRet: 5}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if err := s.PublishSummary(context.Background(), map[string]int{"queries": 1}); err != nil {
		t.Fatalf("PublishSummary() error = %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for result event")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	var e, summary bus.Event
	for _, ev := range got {
		if ev.Type == bus.TypeRunSummary {
			summary = ev
		} else {
			e = ev
		}
	}
	if summary.Key != "run-1" || summary.Source != "run-1" {
		t.Errorf("summary event = %+v", summary)
	}
	p, ok := e.Payload.(ResultPayload)
	if e.Type != bus.TypeResult || e.Key != "q9" || !ok {
		t.Fatalf("event = %+v", e)
	}
	if p.NumRet != 5 || len(p.Docs) != 2 || p.Docs[0].Rank != 1 || p.Docs[1].DocID != "d1" || p.Docs[1].OrigScore != 3 {
		t.Errorf("payload = %+v", p)
	}
}

type recordingSink struct {
	results []Result
	err     error
	closed  bool
}

func (r *recordingSink) Emit(_ context.Context, res Result) error {
	r.results = append(r.results, res)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, b}

	if err := m.Emit(context.Background(), Result{QueryID: "q", NumRet: 1}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if len(a.results) != 1 || len(b.results) != 1 {
		t.Errorf("results = %d, %d; want 1, 1", len(a.results), len(b.results))
	}

	boom := errors.New("boom")
	a.err = boom
	if err := m.Emit(context.Background(), Result{}); !errors.Is(err, boom) {
		t.Errorf("Emit() error = %v, want %v", err, boom)
	}
	if len(b.results) != 1 {
		t.Error("Emit() continued after an error")
	}

	if err := m.Close(); err != nil || !a.closed || !b.closed {
		t.Errorf("Close() = %v, closed %v %v", err, a.closed, b.closed)
	}
}
