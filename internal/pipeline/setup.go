package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ricesearch/rice-letor/internal/bus"
	"github.com/ricesearch/rice-letor/internal/candidate"
	"github.com/ricesearch/rice-letor/internal/config"
	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/evaluation"
	"github.com/ricesearch/rice-letor/internal/index"
	"github.com/ricesearch/rice-letor/internal/letor"
	"github.com/ricesearch/rice-letor/internal/onnx"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qrels"
	"github.com/ricesearch/rice-letor/internal/ranker"
	"github.com/ricesearch/rice-letor/internal/sink"
	"github.com/ricesearch/rice-letor/internal/translation"
)

// MinTranslationProb drops translation table entries below this probability.
const MinTranslationProb = 1e-4

// stores opens every bleve index once, however many components read it.
type stores struct {
	mu     sync.Mutex
	byPath map[string]*index.Store
}

func (s *stores) open(path string) (*index.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := filepath.Clean(path)
	if st, ok := s.byPath[key]; ok {
		return st, nil
	}
	st, err := index.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "opening index", err)
	}
	if s.byPath == nil {
		s.byPath = make(map[string]*index.Store)
	}
	s.byPath[key] = st
	return st, nil
}

func (s *stores) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, st := range s.byPath {
		errs = append(errs, st.Close())
	}
	s.byPath = nil
	return errors.Join(errs...)
}

// Setup loads every resource cfg names and assembles a Runner.
// cfg must already be validated. The returned Runner owns the resources.
func Setup(ctx context.Context, cfg *config.Config, log *logger.Logger) (r *Runner, err error) {
	var (
		closers   []func() error
		sinks     sink.Multi
		providers []candidate.Provider
	)
	defer func() {
		if err != nil {
			_ = candidate.CloseAll(providers)
			_ = sinks.Close()
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	st := &stores{}
	closers = append(closers, st.close)

	intermCaps, finalCaps, err := stageCapabilities(cfg)
	if err != nil {
		return nil, err
	}
	providerType := strings.ToLower(cfg.Provider.Type)
	knn := providerType == config.ProviderQdrant || providerType == config.ProviderChromem

	var res letor.Resources

	needEmb := knn || intermCaps.NeedsEmbeddings || finalCaps.NeedsEmbeddings ||
		intermCaps.NeedsHighOrderEmbeddings || finalCaps.NeedsHighOrderEmbeddings
	if needEmb && cfg.Resources.EmbedDir != "" {
		res.Embeddings, err = embed.LoadSet(cfg.Resources.EmbedDir, cfg.Resources.EmbedFiles, cfg.Resources.HighOrderFiles, log)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "loading embeddings", err)
		}
	}

	needTrans := providerType == config.ProviderBleveExpand ||
		intermCaps.NeedsTranslationModel || finalCaps.NeedsTranslationModel
	if needTrans && cfg.Resources.GizaRootDir != "" && cfg.Resources.GizaIterQty > 0 {
		res.Translation, err = translation.Load(cfg.Resources.GizaRootDir, cfg.Resources.GizaIterQty, MinTranslationProb)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "loading translation table", err)
		}
		log.Info("Loaded translation table", "dir", cfg.Resources.GizaRootDir, "sources", res.Translation.Size())
	}

	if (cfg.Letor.Interm.Extractor != "" || cfg.Letor.Final.Extractor != "") && cfg.Resources.MemIndex != "" {
		if res.Index, err = st.open(cfg.Resources.MemIndex); err != nil {
			return nil, err
		}
	}

	var judgments *qrels.Qrels
	if cfg.Retrieval.QrelFile != "" {
		if judgments, err = qrels.Load(cfg.Retrieval.QrelFile); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "loading qrels", err)
		}
		log.Info("Loaded relevance judgments", "file", cfg.Retrieval.QrelFile, "queries", judgments.QueryCount())
	}

	opts := Options{
		Qrels:         judgments,
		MinRelevGrade: cfg.Retrieval.MinRelevGrade,
		Sizes:         cfg.RequestedSizes(),
		MaxCandidates: cfg.MaxCandidates(),
		Log:           log,
	}

	if spec := cfg.Letor.Interm.Extractor; spec != "" {
		ext, err := letor.New(spec, res, false)
		if err != nil {
			return nil, err
		}
		weights, err := letor.ReadWeights(cfg.Letor.Interm.ModelFile)
		if err != nil {
			return nil, err
		}
		opts.Interm = &IntermStage{Extractor: ext, Weights: weights}
		log.Info("Intermediate reranker ready", "extractor", ext.Name(), "features", ext.FeatureQty())
	}

	if spec := cfg.Letor.Final.Extractor; spec != "" {
		ext, err := letor.New(spec, res, cfg.Letor.Final.AddRankScores)
		if err != nil {
			return nil, err
		}
		fin := &FinalStage{Extractor: ext, AddRankScores: cfg.Letor.Final.AddRankScores}
		if path := cfg.Letor.Final.ModelFile; path != "" {
			var rt *onnx.Runtime
			if strings.EqualFold(filepath.Ext(path), ".onnx") {
				if rt, err = onnx.NewRuntime(onnx.DefaultRuntimeConfig()); err != nil {
					return nil, err
				}
				closers = append(closers, rt.Close)
			}
			if fin.Model, err = ranker.Load(path, rt); err != nil {
				return nil, err
			}
		}
		opts.Final = fin
		log.Info("Final reranker ready", "extractor", ext.Name(), "features", ext.FeatureQty(),
			"model", cfg.Letor.Final.ModelFile, "add_rank_scores", fin.AddRankScores)
	}

	if sinks, err = newSinks(cfg, opts.Sizes, judgments, log); err != nil {
		return nil, err
	}
	opts.Sink = sinks

	providers, err = candidate.NewProviders(ctx, cfg, candidate.Deps{
		OpenStore:   st.open,
		Translation: res.Translation,
		Embeddings:  res.Embeddings,
		Log:         log,
	})
	if err != nil {
		return nil, err
	}
	opts.Providers = providers

	if r, err = New(opts); err != nil {
		return nil, err
	}
	r.closers = closers
	if knn {
		r.queryVectors = res.Embeddings
	}
	return r, nil
}

func stageCapabilities(cfg *config.Config) (interm, final letor.Capabilities, err error) {
	if spec := cfg.Letor.Interm.Extractor; spec != "" {
		if interm, err = letor.ParseCapabilities(spec); err != nil {
			return interm, final, err
		}
	}
	if spec := cfg.Letor.Final.Extractor; spec != "" {
		if final, err = letor.ParseCapabilities(spec); err != nil {
			return interm, final, err
		}
	}
	return interm, final, nil
}

// newSinks builds the configured result sinks.
func newSinks(cfg *config.Config, sizes []int, judgments *qrels.Qrels, log *logger.Logger) (sink.Multi, error) {
	var sinks sink.Multi
	for _, name := range cfg.Sinks() {
		var s sink.Sink
		var err error
		switch name {
		case config.SinkTREC:
			s, err = sink.NewTRECSink(cfg.Output.RunDir, cfg.Output.RunName, sizes, judgments, log)
		case config.SinkEval:
			if judgments == nil {
				err = apperrors.ConfigError("the eval sink needs qrel_file")
				break
			}
			s = sink.NewEvalSink(evaluation.NewEvaluator(judgments, cfg.Retrieval.MinRelevGrade), log)
		case config.SinkKafka:
			var kb *bus.KafkaBus
			kb, err = bus.NewKafkaBus(bus.KafkaConfig{Brokers: cfg.KafkaBrokers()})
			if err == nil {
				s = sink.NewBusSink(kb, cfg.Kafka.Topic, cfg.Output.RunName)
			}
		case config.SinkNone:
			continue
		default:
			err = apperrors.ConfigErrorf("invalid sink: %s", name)
		}
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
