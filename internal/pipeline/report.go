package pipeline

import (
	"context"
	"errors"

	"github.com/ricesearch/rice-letor/internal/config"
	"github.com/ricesearch/rice-letor/internal/metrics"
	"github.com/ricesearch/rice-letor/internal/sink"
)

// summaryStore persists run summaries.
type summaryStore interface {
	SaveSummary(ctx context.Context, run string, s metrics.Summary) error
	Close() error
}

var openSummaryStore = func(url string) (summaryStore, error) {
	return metrics.NewRedisStorage(url)
}

// Report logs the run statistics and sends them to every configured destination:
// the stat file, Redis, the Pushgateway and summary-aware sinks.
func (r *Runner) Report(ctx context.Context, cfg *config.Config) error {
	sum := r.Summary()
	sum.Log(r.log)
	if r.queryVectors != nil {
		cs := r.queryVectors.CacheStats()
		r.log.Info("Query vector cache", "hits", cs.Hits, "misses", cs.Misses, "size", cs.Size)
	}

	var errs []error

	if path := cfg.Output.StatFile; path != "" {
		if err := sum.WriteStatFile(path); err != nil {
			errs = append(errs, err)
		} else {
			r.log.Info("Saved run statistics", "file", path)
		}
	}

	if url := cfg.Redis.URL; url != "" {
		if err := saveSummary(ctx, url, cfg.Output.RunName, sum); err != nil {
			errs = append(errs, err)
		}
	}

	if url := cfg.Prometheus.PushURL; url != "" {
		if err := sum.Push(ctx, url, cfg.Prometheus.Job, cfg.Output.RunName); err != nil {
			errs = append(errs, err)
		}
	}

	if err := sink.PublishSummary(ctx, r.sink, sum); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func saveSummary(ctx context.Context, url, run string, sum metrics.Summary) error {
	store, err := openSummaryStore(url)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveSummary(ctx, run, sum)
}
