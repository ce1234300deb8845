// Package pipeline runs the query batch through retrieval, the optional
// reranking stages and multi-size result emission.
package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-letor/internal/candidate"
	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/letor"
	"github.com/ricesearch/rice-letor/internal/metrics"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qrels"
	"github.com/ricesearch/rice-letor/internal/query"
	"github.com/ricesearch/rice-letor/internal/ranker"
	"github.com/ricesearch/rice-letor/internal/sink"
)

// IntermStage scores candidates by the dot product of their features with Weights
// and keeps the best maxSize of them.
type IntermStage struct {
	Extractor letor.Extractor
	Weights   letor.Vector
}

// FinalStage computes the final features and, when Model is set, the final scores.
type FinalStage struct {
	Extractor     letor.Extractor
	Model         ranker.Model
	AddRankScores bool
}

// Options configures a Runner.
type Options struct {
	// Providers holds one provider per worker; entries may alias one shared instance.
	Providers []candidate.Provider

	Interm *IntermStage
	Final  *FinalStage

	// Qrels enables relevance gating when set.
	Qrels *qrels.Qrels

	// MinRelevGrade is the lowest grade counted as relevant. Values below 1 mean 1.
	MinRelevGrade int

	// Sizes are the requested result sizes.
	Sizes []int

	// MaxCandidates is the number of candidates retrieved per query when an
	// intermediate stage is set. It is raised to the largest size when smaller.
	// Without an intermediate stage the largest size is retrieved.
	MaxCandidates int

	Sink sink.Sink
	Log  *logger.Logger
}

// Runner processes a query batch with a fixed pool of workers.
type Runner struct {
	providers []candidate.Provider
	interm    *IntermStage
	final     *FinalStage
	judgments *qrels.Qrels
	minGrade  int
	sizes     []int
	maxSize   int
	maxCand   int
	sink      sink.Sink
	log       *logger.Logger

	// emitMu serializes sink calls across workers.
	emitMu sync.Mutex
	stats  *metrics.RunStats

	elapsed time.Duration
	closers []func() error

	// queryVectors is set when a KNN provider builds query vectors.
	queryVectors *embed.Set
}

// New validates opts and creates a Runner.
func New(opts Options) (*Runner, error) {
	if len(opts.Providers) == 0 {
		return nil, apperrors.ConfigError("at least one candidate provider is required")
	}
	for i, p := range opts.Providers {
		if p == nil {
			return nil, apperrors.ConfigErrorf("no candidate provider for worker %d", i)
		}
	}
	if len(opts.Sizes) == 0 {
		return nil, apperrors.ConfigError("specify at least one result size")
	}
	sizes := slices.Clone(opts.Sizes)
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)
	if sizes[0] <= 0 {
		return nil, apperrors.ConfigError("specify only positive number of candidate entries")
	}
	if opts.Sink == nil {
		return nil, apperrors.ConfigError("no result sink")
	}

	if in := opts.Interm; in != nil {
		if in.Extractor == nil {
			return nil, apperrors.ConfigError("intermediate stage without an extractor")
		}
		if err := letor.CheckWeights(in.Weights, in.Extractor.FeatureQty()); err != nil {
			return nil, err
		}
	}
	if fin := opts.Final; fin != nil {
		if fin.Extractor == nil {
			return nil, apperrors.ConfigError("final stage without an extractor")
		}
		if fin.Model != nil {
			qty := fin.Extractor.FeatureQty()
			if fin.AddRankScores {
				qty += 2
			}
			if d := fin.Model.Dim(); d > qty {
				return nil, apperrors.ConfigErrorf("final model reads %d features, the extractor produces %d", d, qty)
			}
		}
	}

	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}

	maxSize := sizes[len(sizes)-1]
	maxCand := maxSize
	if opts.Interm != nil {
		maxCand = max(opts.MaxCandidates, maxSize)
	}
	return &Runner{
		providers: opts.Providers,
		interm:    opts.Interm,
		final:     opts.Final,
		judgments: opts.Qrels,
		minGrade:  max(opts.MinRelevGrade, 1),
		sizes:     sizes,
		maxSize:   maxSize,
		maxCand:   maxCand,
		sink:      opts.Sink,
		log:       log,
		stats:     metrics.NewRunStats(opts.Interm != nil, opts.Final != nil),
	}, nil
}

// Workers returns the number of workers.
func (r *Runner) Workers() int { return len(r.providers) }

// Stats returns the statistics accumulated so far.
func (r *Runner) Stats() *metrics.RunStats { return r.stats }

// Summary returns the statistics of the last run.
func (r *Runner) Summary() metrics.Summary {
	return r.stats.Summary(float64(r.elapsed.Microseconds()) / 1000)
}

// Run processes queries. Query i is handled by worker i mod N. The first
// error cancels the remaining workers and is returned.
func (r *Runner) Run(ctx context.Context, queries []query.Record) error {
	start := time.Now()
	defer func() { r.elapsed = time.Since(start) }()

	n := len(r.providers)
	r.log.Info("Starting workers", "workers", n, "queries", len(queries),
		"max_candidates", r.maxCand, "sizes", r.sizes)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < n; w++ {
		wk := &worker{
			id:       w,
			r:        r,
			provider: r.providers[w],
			log:      r.log.WithWorker(w),
		}
		g.Go(func() error {
			return wk.run(gctx, queries, n)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// Close releases the providers, the sink and every resource registered by Setup.
// Shared providers are closed once.
func (r *Runner) Close() error {
	errs := []error{candidate.CloseAll(r.providers), r.sink.Close()}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func (r *Runner) emit(ctx context.Context, res sink.Result) error {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if err := r.sink.Emit(ctx, res); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "emitting results for query "+res.QueryID, err)
	}
	return nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
