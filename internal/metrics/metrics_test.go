package metrics

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAccumulator(t *testing.T) {
	var a Accumulator
	if a.Mean() != 0 || a.StdDev() != 0 || a.Count() != 0 {
		t.Fatalf("zero accumulator: mean=%v std=%v n=%d", a.Mean(), a.StdDev(), a.Count())
	}

	a.Add(5)
	if a.StdDev() != 0 {
		t.Errorf("stddev of one value = %v, want 0", a.StdDev())
	}

	for _, x := range []float64{2, 4, 4, 4, 5, 7, 9} {
		a.Add(x)
	}
	// values: 5 2 4 4 4 5 7 9 -> mean 5, sum of squares 32, n-1 = 7
	if !approx(a.Mean(), 5) {
		t.Errorf("mean = %v, want 5", a.Mean())
	}
	if want := math.Sqrt(32.0 / 7.0); !approx(a.StdDev(), want) {
		t.Errorf("stddev = %v, want %v", a.StdDev(), want)
	}
}

func TestAccumulator_Concurrent(t *testing.T) {
	var a Accumulator
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				a.Add(3)
			}
		}()
	}
	wg.Wait()

	if a.Count() != 8000 {
		t.Errorf("count = %d, want 8000", a.Count())
	}
	if !approx(a.Mean(), 3) || !approx(a.StdDev(), 0) {
		t.Errorf("mean=%v std=%v, want 3 and 0", a.Mean(), a.StdDev())
	}
}

func TestAccumulator_OrderIndependent(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i + 1)
	}

	// 1..n: mean (n+1)/2, sample variance n(n+1)/12
	n := float64(len(values))
	wantMean := (n + 1) / 2
	wantStd := math.Sqrt(n * (n + 1) / 12)

	var ref Accumulator
	for _, x := range values {
		ref.Add(x)
	}
	if math.Abs(ref.Mean()-wantMean) > 1e-6 || math.Abs(ref.StdDev()-wantStd) > 1e-6 {
		t.Fatalf("sequential mean=%v std=%v, want %v and %v", ref.Mean(), ref.StdDev(), wantMean, wantStd)
	}

	for _, seed := range []int64{1, 7, 42} {
		for _, workers := range []int{1, 4, 13} {
			shuffled := slices.Clone(values)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			var a Accumulator
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := w; i < len(shuffled); i += workers {
						a.Add(shuffled[i])
					}
				}()
			}
			wg.Wait()

			if a.Count() != ref.Count() {
				t.Errorf("seed=%d workers=%d: count = %d, want %d", seed, workers, a.Count(), ref.Count())
			}
			if math.Abs(a.Mean()-ref.Mean()) > 1e-6 {
				t.Errorf("seed=%d workers=%d: mean = %v, want %v", seed, workers, a.Mean(), ref.Mean())
			}
			if math.Abs(a.StdDev()-ref.StdDev()) > 1e-6 {
				t.Errorf("seed=%d workers=%d: stddev = %v, want %v", seed, workers, a.StdDev(), ref.StdDev())
			}
		}
	}
}

func sampleStats(interm, final bool) *RunStats {
	s := NewRunStats(interm, final)
	s.QueryTime.Add(10)
	s.QueryTime.Add(20)
	s.NumFound.Add(100)
	s.NumFound.Add(50)
	s.IntermRerankTime.Add(3)
	s.FinalRerankTime.Add(7)
	return s
}

func TestRunStats_Summary(t *testing.T) {
	sum := sampleStats(false, true).Summary(42)

	if sum.Queries != 2 {
		t.Errorf("queries = %d, want 2", sum.Queries)
	}
	if !approx(sum.QueryTime.Mean, 15) || !approx(sum.NumFound.Mean, 75) {
		t.Errorf("query mean %v, num found mean %v", sum.QueryTime.Mean, sum.NumFound.Mean)
	}
	if sum.IntermRerankTime.Mean != 0 {
		t.Errorf("interm mean without interm model = %v, want 0", sum.IntermRerankTime.Mean)
	}
	if !approx(sum.FinalRerankTime.Mean, 7) {
		t.Errorf("final mean = %v, want 7", sum.FinalRerankTime.Mean)
	}
	if sum.TotalTime != 42 {
		t.Errorf("total = %v, want 42", sum.TotalTime)
	}
}

func TestWriteStatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stat.tsv")
	if err := sampleStats(true, false).Summary(1000).WriteStatFile(path); err != nil {
		t.Fatalf("WriteStatFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := StatFileHeader + "\n15.000000\t3.000000\t0.000000\t1000.000000\n"
	if string(data) != want {
		t.Errorf("stat file = %q, want %q", data, want)
	}
}

func TestWriteStatFile_BadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "stat.tsv")
	if err := (Summary{}).WriteStatFile(path); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSummaryFieldsRoundTrip(t *testing.T) {
	sum := sampleStats(true, true).Summary(123.5)
	got, err := parseSummaryFields(summaryFields(sum))
	if err != nil {
		t.Fatalf("parseSummaryFields: %v", err)
	}
	if got != sum {
		t.Errorf("round trip = %+v, want %+v", got, sum)
	}

	fields := summaryFields(sum)
	fields["total_time"] = "abc"
	if _, err := parseSummaryFields(fields); err == nil {
		t.Error("expected error for malformed field")
	}
}

func TestSummary_Registry(t *testing.T) {
	reg := sampleStats(false, true).Summary(9).Registry()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	series := make(map[string]int)
	single := make(map[string]float64)
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
		if len(mf.GetMetric()) == 1 {
			single[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}

	if single["letor_queries"] != 2 {
		t.Errorf("letor_queries = %v, want 2", single["letor_queries"])
	}
	if single["letor_run_time_ms"] != 9 {
		t.Errorf("letor_run_time_ms = %v, want 9", single["letor_run_time_ms"])
	}
	// query and final_rerank, mean and std each
	if series["letor_stage_time_ms"] != 4 {
		t.Errorf("stage_time series = %d, want 4", series["letor_stage_time_ms"])
	}
	if series["letor_num_found"] != 2 {
		t.Errorf("num_found series = %d, want 2", series["letor_num_found"])
	}
}

func TestSummary_Push(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sum := sampleStats(true, true).Summary(9)
	if err := sum.Push(context.Background(), srv.URL, "letor", "bm_run"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/letor/run/bm_run" {
		t.Errorf("path = %s", path)
	}
	if !bytes.Contains(body, []byte("letor_stage_time_ms")) {
		t.Error("pushed body does not contain stage time metric")
	}
}

func TestSummary_PushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := (Summary{}).Push(context.Background(), srv.URL, "", ""); err == nil {
		t.Fatal("expected error from failing gateway")
	}
}
