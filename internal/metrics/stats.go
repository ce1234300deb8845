package metrics

import (
	"bufio"
	"fmt"
	"os"

	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

// StatFileHeader is the first line of a stat file.
const StatFileHeader = "QueryTime\tIntermRerankTime\tFinalRerankTime\tTotalTime"

// RunStats holds the accumulators shared by all workers of one run.
type RunStats struct {
	QueryTime        Accumulator
	IntermRerankTime Accumulator
	FinalRerankTime  Accumulator
	NumFound         Accumulator

	// Set when the corresponding reranking stage is configured.
	HasInterm bool
	HasFinal  bool
}

// NewRunStats creates run statistics for the configured stages.
func NewRunStats(hasInterm, hasFinal bool) *RunStats {
	return &RunStats{HasInterm: hasInterm, HasFinal: hasFinal}
}

// Summary is the reportable view of a finished run.
type Summary struct {
	Queries          int64   `json:"queries"`
	QueryTime        Stat    `json:"query_time_ms"`
	NumFound         Stat    `json:"num_found"`
	IntermRerankTime Stat    `json:"interm_rerank_time_ms"`
	FinalRerankTime  Stat    `json:"final_rerank_time_ms"`
	TotalTime        float64 `json:"total_time_ms"`
	HasInterm        bool    `json:"has_interm"`
	HasFinal         bool    `json:"has_final"`
}

// Summary snapshots the accumulators. Rerank times of stages that are not
// configured are reported as zero.
func (s *RunStats) Summary(totalMS float64) Summary {
	sum := Summary{
		Queries:   s.QueryTime.Count(),
		QueryTime: s.QueryTime.Snapshot(),
		NumFound:  s.NumFound.Snapshot(),
		TotalTime: totalMS,
		HasInterm: s.HasInterm,
		HasFinal:  s.HasFinal,
	}
	if s.HasInterm {
		sum.IntermRerankTime = s.IntermRerankTime.Snapshot()
	}
	if s.HasFinal {
		sum.FinalRerankTime = s.FinalRerankTime.Snapshot()
	}
	return sum
}

// Log writes the summary at info level.
func (s Summary) Log(log *logger.Logger) {
	log.Info("Query time (ms)", "mean", s.QueryTime.Mean, "std", s.QueryTime.StdDev)
	log.Info("Number of entries found", "mean", s.NumFound.Mean, "std", s.NumFound.StdDev)
	if s.HasInterm {
		log.Info("Intermediate reranking time (ms)", "mean", s.IntermRerankTime.Mean, "std", s.IntermRerankTime.StdDev)
	}
	if s.HasFinal {
		log.Info("Final reranking time (ms)", "mean", s.FinalRerankTime.Mean, "std", s.FinalRerankTime.StdDev)
	}
	log.Info("Run finished", "queries", s.Queries, "total_ms", s.TotalTime)
}

// WriteStatFile writes the header and one line of means to path.
func (s Summary) WriteStatFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating stat file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, StatFileHeader)
	fmt.Fprintf(w, "%f\t%f\t%f\t%f\n",
		s.QueryTime.Mean, s.IntermRerankTime.Mean, s.FinalRerankTime.Mean, s.TotalTime)

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing stat file: %w", err)
	}
	return f.Close()
}
