package index

import (
	"context"
	"fmt"
	"time"

	"github.com/ricesearch/rice-letor/internal/embed"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/qdrant"
	"github.com/ricesearch/rice-letor/internal/query"
)

// PointWriter stores document vectors in an external KNN service.
type PointWriter interface {
	EnsureCollection(ctx context.Context, cfg qdrant.CollectionConfig) error
	UpsertPoints(ctx context.Context, collection string, points []qdrant.Point) error
}

// TextWriter stores document text in an external full-text backend.
type TextWriter interface {
	EnsureSchema(ctx context.Context) error
	AddDocuments(ctx context.Context, docs []*Document) error
}

// Targets are the optional stores filled besides the bleve index.
type Targets struct {
	Vectors *VectorCollection
	Points  PointWriter
	Texts   TextWriter
}

// BuilderConfig configures index building.
type BuilderConfig struct {
	// BatchSize is the number of documents indexed per batch.
	BatchSize int

	// Workers is the number of parallel vector workers.
	Workers int

	// TextField is the record field holding the document text.
	TextField string

	// Collection names the vector collections.
	Collection string
}

// DefaultBuilderConfig returns sensible defaults.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		BatchSize:  DefaultBatchSize,
		Workers:    DefaultWorkers,
		TextField:  query.FieldText,
		Collection: DefaultCollection,
	}
}

// Builder orchestrates the indexing flow:
// records → bleve store (+ full-text backend) → document vectors → chromem / Qdrant
type Builder struct {
	cfg     BuilderConfig
	store   *Store
	vectors *VectorCollection
	points  PointWriter
	texts   TextWriter
	emb     *embed.Embeddings
	log     *logger.Logger
}

// BuildResult summarizes an indexing run.
type BuildResult struct {
	Indexed  int           `json:"indexed"`
	Vectors  int           `json:"vectors"`
	Duration time.Duration `json:"duration"`
}

// NewBuilder creates a builder. Every target is optional, but emb is
// required when a vector target is set.
func NewBuilder(cfg BuilderConfig, store *Store, targets Targets, emb *embed.Embeddings, log *logger.Logger) (*Builder, error) {
	def := DefaultBuilderConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TextField == "" {
		cfg.TextField = def.TextField
	}
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if (targets.Vectors != nil || targets.Points != nil) && emb == nil {
		return nil, apperrors.ConfigError("document vectors need word embeddings")
	}

	return &Builder{
		cfg:     cfg,
		store:   store,
		vectors: targets.Vectors,
		points:  targets.Points,
		texts:   targets.Texts,
		emb:     emb,
		log:     log,
	}, nil
}

func (b *Builder) wantsVectors() bool {
	return b.vectors != nil || b.points != nil
}

// Build indexes every record of the document file at path.
func (b *Builder) Build(ctx context.Context, path string) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if b.texts != nil {
		if err := b.texts.EnsureSchema(ctx); err != nil {
			return nil, apperrors.BackendError("creating full-text schema", err)
		}
	}

	batch := make([]*Document, 0, b.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := b.store.Add(batch); err != nil {
			return apperrors.BackendError("indexing batch", err)
		}
		if b.texts != nil {
			if err := b.texts.AddDocuments(ctx, batch); err != nil {
				return apperrors.BackendError("loading full-text batch", err)
			}
		}
		n, err := b.addVectors(ctx, batch)
		if err != nil {
			return err
		}
		result.Indexed += len(batch)
		result.Vectors += n
		b.log.Info("Indexed documents", "total", result.Indexed, "vectors", result.Vectors)
		batch = batch[:0]
		return nil
	}

	err := query.ReadRecords(ctx, path, 0, func(rec query.Record) error {
		doc, err := DocumentFromRecord(rec, b.cfg.TextField)
		if err != nil {
			return err
		}
		if err := ValidateDocument(doc); err != nil {
			return apperrors.ParseError("invalid document", err)
		}
		batch = append(batch, doc)
		if len(batch) >= b.cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// FillVectors computes vectors for every document already in the store.
func (b *Builder) FillVectors(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}

	if !b.wantsVectors() {
		return result, nil
	}
	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}

	err := b.store.ForEach(ctx, b.cfg.BatchSize, func(docs []*Document) error {
		n, err := b.addVectors(ctx, docs)
		if err != nil {
			return err
		}
		result.Indexed += len(docs)
		result.Vectors += n
		b.log.Info("Vectorized documents", "total", result.Indexed, "vectors", result.Vectors)
		return nil
	})
	if err != nil {
		return nil, apperrors.BackendError("reading stored documents", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (b *Builder) ensureCollection(ctx context.Context) error {
	if b.points == nil {
		return nil
	}
	cfg := qdrant.DefaultCollectionConfig(b.cfg.Collection, b.emb.Dim())
	if err := b.points.EnsureCollection(ctx, cfg); err != nil {
		return apperrors.BackendError("creating vector collection", err)
	}
	return nil
}

// addVectors stores the vectors of docs and returns how many were non-empty.
func (b *Builder) addVectors(ctx context.Context, docs []*Document) (int, error) {
	if !b.wantsVectors() {
		return 0, nil
	}

	dvs, err := computeVectors(ctx, b.emb, docs, b.cfg.Workers)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(dvs))
	vecs := make([][]float32, 0, len(dvs))
	points := make([]qdrant.Point, 0, len(dvs))
	for _, dv := range dvs {
		if len(dv.vec) == 0 {
			continue
		}
		ids = append(ids, dv.id)
		vecs = append(vecs, dv.vec)
		points = append(points, qdrant.Point{DocID: dv.id, Vector: dv.vec})
	}

	if b.vectors != nil {
		if err := b.vectors.Add(ctx, ids, vecs, b.cfg.Workers); err != nil {
			return 0, apperrors.BackendError("storing chromem vectors", err)
		}
	}
	if b.points != nil {
		if err := b.points.UpsertPoints(ctx, b.cfg.Collection, points); err != nil {
			return 0, apperrors.BackendError(fmt.Sprintf("upserting %d points", len(points)), err)
		}
	}
	return len(ids), nil
}
