package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "letor"

// Registry builds a Prometheus registry holding the gauges of one run summary.
func (s Summary) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	stageTime := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_time_ms",
		Help:      "Per-query stage time in milliseconds",
	}, []string{"stage", "stat"})
	numFound := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "num_found",
		Help:      "Number of candidate entries found per query",
	}, []string{"stat"})
	queries := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queries",
		Help:      "Number of queries processed",
	})
	total := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_time_ms",
		Help:      "Wall-clock time of the run in milliseconds",
	})
	reg.MustRegister(stageTime, numFound, queries, total)

	setStat := func(stage string, st Stat) {
		stageTime.WithLabelValues(stage, "mean").Set(st.Mean)
		stageTime.WithLabelValues(stage, "std").Set(st.StdDev)
	}
	setStat("query", s.QueryTime)
	if s.HasInterm {
		setStat("interm_rerank", s.IntermRerankTime)
	}
	if s.HasFinal {
		setStat("final_rerank", s.FinalRerankTime)
	}
	numFound.WithLabelValues("mean").Set(s.NumFound.Mean)
	numFound.WithLabelValues("std").Set(s.NumFound.StdDev)
	queries.Set(float64(s.Queries))
	total.Set(s.TotalTime)

	return reg
}

// Push sends the summary to a Pushgateway, grouped by run name.
func (s Summary) Push(ctx context.Context, url, job, run string) error {
	if job == "" {
		job = "rice_letor"
	}
	p := push.New(url, job).Gatherer(s.Registry())
	if run != "" {
		p = p.Grouping("run", run)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
