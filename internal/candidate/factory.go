package candidate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ricesearch/rice-letor/internal/config"
	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/index"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qdrant"
	"github.com/ricesearch/rice-letor/internal/translation"
)

// Deps carries resources loaded once per run and shared by providers and extractors.
type Deps struct {
	// OpenStore returns the bleve index at path. Stores are owned by the caller.
	OpenStore func(path string) (*index.Store, error)

	// Translation is required by bleve_expand.
	Translation *translation.Table

	// Embeddings are required by the KNN providers.
	Embeddings *embed.Set

	Log *logger.Logger
}

// NewProviders returns one provider per worker. Shared providers are created once
// and aliased; the others are created once per worker.
func NewProviders(ctx context.Context, cfg *config.Config, deps Deps) ([]Provider, error) {
	n := cfg.Workers.Threads
	if n < 1 {
		return nil, apperrors.ConfigErrorf("number of threads must be positive: '%d'", n)
	}

	var throttle func(Provider) Provider
	if cfg.Provider.RateLimit > 0 {
		limiter := NewLimiter(cfg.Provider.RateLimit)
		throttle = func(p Provider) Provider { return Throttle(p, limiter) }
	}

	providers := make([]Provider, 0, n)
	for len(providers) < n {
		p, err := newProvider(ctx, cfg, deps)
		if err != nil {
			_ = CloseAll(providers)
			return nil, err
		}
		if throttle != nil {
			p = throttle(p)
		}
		if p.Shared() {
			for len(providers) < n {
				providers = append(providers, p)
			}
			break
		}
		providers = append(providers, p)
	}

	if deps.Log != nil {
		deps.Log.Info("Candidate providers ready",
			"type", providers[0].Name(),
			"workers", n,
			"shared", providers[0].Shared(),
		)
	}
	return providers, nil
}

func newProvider(ctx context.Context, cfg *config.Config, deps Deps) (Provider, error) {
	pc := cfg.Provider
	switch strings.ToLower(pc.Type) {
	case config.ProviderBleve, config.ProviderBleveExpand:
		if deps.OpenStore == nil {
			return nil, apperrors.InternalError("no index opener for the bleve provider", nil)
		}
		store, err := deps.OpenStore(pc.URI)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(pc.Type, config.ProviderBleve) {
			return NewBleveProvider(store, false, pc.MinShouldMatchPct), nil
		}
		if deps.Translation == nil {
			return nil, apperrors.ConfigError("query expansion needs a translation table (giza_root_dir)")
		}
		return NewExpandProvider(store, false, pc.MinShouldMatchPct, deps.Translation, pc.ExpandQty, pc.ExpandUseWeights), nil

	case config.ProviderPostgres:
		if pc.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, pc.Timeout)
			defer cancel()
		}
		p, err := NewPostgresProvider(ctx, pc.URI, pc.Collection, pc.MinShouldMatchPct)
		if err != nil {
			return nil, apperrors.BackendError("connecting to postgres", err)
		}
		return p, nil

	case config.ProviderQdrant:
		if deps.Embeddings == nil {
			return nil, apperrors.ConfigError("KNN providers need word embeddings")
		}
		qc, err := qdrant.ParseURI(pc.URI, pc.Timeout)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "parsing qdrant URI", err)
		}
		p, err := NewQdrantProvider(qc, pc.Collection, deps.Embeddings, pc.KNNFields)
		if err != nil {
			return nil, apperrors.BackendError("connecting to qdrant", err)
		}
		return p, nil

	case config.ProviderChromem:
		if deps.Embeddings == nil {
			return nil, apperrors.ConfigError("KNN providers need word embeddings")
		}
		vectors, err := index.ReadVectorCollection(pc.URI, pc.Collection)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "opening vector collection", err)
		}
		if err != nil {
			return nil, apperrors.BackendError("opening vector collection", err)
		}
		return NewChromemProvider(vectors, deps.Embeddings, pc.KNNFields), nil
	}

	return nil, apperrors.ConfigErrorf("wrong candidate record provider type: '%s'", pc.Type)
}

// CloseAll closes every distinct provider once.
func CloseAll(providers []Provider) error {
	seen := make(map[Provider]bool, len(providers))
	var errs []error
	for _, p := range providers {
		if p == nil || seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s provider: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
