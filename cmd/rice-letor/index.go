package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-letor/internal/candidate"
	"github.com/ricesearch/rice-letor/internal/config"
	"github.com/ricesearch/rice-letor/internal/embed"
	"github.com/ricesearch/rice-letor/internal/index"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/qdrant"
)

type indexOptions struct {
	docs        string
	indexPath   string
	textField   string
	batchSize   int
	collection  string
	chromemDir  string
	qdrantURI   string
	postgresURL string
	fillVectors bool
}

func indexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the document index",
		Long: `Index a document file (same record format as the query batch) into the
bleve index used by the bleve providers and the feature extractors.

Optionally fill a chromem collection, a Qdrant collection and a Postgres
full-text table with the same documents. Document vectors are the mean of the
word embeddings of the first configured embedding file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if f := cmd.Flags(); f.Changed("knn-threads") {
				cfg.Workers.KNNThreads, _ = f.GetInt("knn-threads")
			}
			return runIndex(cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.docs, "docs", "", "document file to index")
	f.StringVar(&opts.indexPath, "index", "", "bleve index path (default: resources.mem_index)")
	f.StringVar(&opts.textField, "text-field", "text", "record field holding the document text")
	f.IntVar(&opts.batchSize, "batch-size", 0, "documents per indexing batch")
	f.StringVar(&opts.collection, "collection", "", "vector collection and table name")
	f.StringVar(&opts.chromemDir, "chromem", "", "chromem directory to fill with document vectors")
	f.StringVar(&opts.qdrantURI, "qdrant", "", "qdrant host:port to fill with document vectors")
	f.StringVar(&opts.postgresURL, "postgres", "", "postgres URL to fill with document text")
	f.BoolVar(&opts.fillVectors, "fill-vectors", false, "only compute vectors for documents already in the index")
	f.Int("knn-threads", 1, "number of threads computing and inserting document vectors (index only; workers.knn_threads)")

	return cmd
}

func runIndex(cmd *cobra.Command, cfg *config.Config, opts indexOptions) (err error) {
	ctx := cmd.Context()
	log := newLogger(cfg)

	if opts.indexPath == "" {
		opts.indexPath = cfg.Resources.MemIndex
	}
	if opts.indexPath == "" {
		return apperrors.ConfigError("specify the index path (--index or resources.mem_index)")
	}
	if opts.docs == "" && !opts.fillVectors {
		return apperrors.ConfigError("specify the document file (--docs)")
	}
	if cfg.Workers.KNNThreads < 1 {
		return apperrors.ConfigErrorf("number of KNN threads must be positive: '%d'", cfg.Workers.KNNThreads)
	}
	if opts.collection == "" {
		opts.collection = cfg.Provider.Collection
	}

	var closers []func() error
	defer func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		if cerr := errors.Join(errs...); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var targets index.Targets
	wantVectors := opts.chromemDir != "" || opts.qdrantURI != ""

	var emb *embed.Embeddings
	if wantVectors {
		if cfg.Resources.EmbedDir == "" || len(cfg.Resources.EmbedFiles) == 0 {
			return apperrors.ConfigError("document vectors need word embeddings: specify embed_dir and embed_files")
		}
		set, err := embed.LoadSet(cfg.Resources.EmbedDir, cfg.Resources.EmbedFiles[:1], nil, log)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeConfig, "loading embeddings", err)
		}
		emb = set.Primary()
	}

	if opts.chromemDir != "" {
		targets.Vectors, err = index.OpenVectorCollection(opts.chromemDir, opts.collection)
		if err != nil {
			return apperrors.BackendError("opening chromem collection", err)
		}
	}

	if opts.qdrantURI != "" {
		qc, err := qdrant.ParseURI(opts.qdrantURI, cfg.Provider.Timeout)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeConfig, "parsing qdrant URI", err)
		}
		client, err := qdrant.NewClient(qc)
		if err != nil {
			return apperrors.BackendError("connecting to qdrant", err)
		}
		closers = append(closers, client.Close)
		targets.Points = client
	}

	if opts.postgresURL != "" {
		if opts.fillVectors {
			return apperrors.ConfigError("--postgres needs --docs, not --fill-vectors")
		}
		pg, err := candidate.NewPostgresProvider(ctx, opts.postgresURL, opts.collection, 0)
		if err != nil {
			return apperrors.BackendError("connecting to postgres", err)
		}
		closers = append(closers, pg.Close)
		targets.Texts = pg
	}

	var store *index.Store
	if opts.fillVectors {
		store, err = index.Open(opts.indexPath)
	} else {
		store, err = index.Create(opts.indexPath)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConfig, "opening index", err)
	}
	closers = append(closers, store.Close)

	builder, err := index.NewBuilder(index.BuilderConfig{
		BatchSize:  opts.batchSize,
		Workers:    cfg.Workers.KNNThreads,
		TextField:  strings.TrimSpace(opts.textField),
		Collection: opts.collection,
	}, store, targets, emb, log)
	if err != nil {
		return err
	}

	var result *index.BuildResult
	if opts.fillVectors {
		result, err = builder.FillVectors(ctx)
	} else {
		result, err = builder.Build(ctx, opts.docs)
	}
	if err != nil {
		return err
	}

	log.Info("Indexing finished",
		"index", opts.indexPath,
		"documents", result.Indexed,
		"vectors", result.Vectors,
		"took", result.Duration,
	)
	return nil
}
