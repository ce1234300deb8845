package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ricesearch/rice-letor/internal/config"
	"github.com/ricesearch/rice-letor/internal/pipeline"
	"github.com/ricesearch/rice-letor/internal/query"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a query batch",
		Long: `Load the query batch, retrieve candidates for every query with the
configured provider, apply the optional intermediate and final rerankers and
emit one result list per requested size to the configured sinks.

Flags override values from the config file and LETOR_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.String("provider", "", "candidate provider type (bleve, bleve_expand, postgres, qdrant, chromem)")
	f.String("uri", "", "provider URI (index path, database URL, qdrant address or chromem directory)")
	f.String("collection", "", "provider collection or table")
	f.Int("min-should-match-pct", 0, "percentage of query words that must match (0-99)")
	f.String("queries", "", "query batch file")
	f.Int("max-queries", 0, "maximum number of queries to load (0 = all)")
	f.String("num-ret", "", "comma-separated result sizes, e.g. 10,50,100")
	f.Int("max-cand", 0, "number of candidates retrieved for the intermediate reranker")
	f.String("qrels", "", "relevance judgments file")
	f.Int("min-relev-grade", 1, "minimum grade of a relevant document")
	f.IntP("threads", "t", 1, "number of worker threads")
	f.String("interm-extractor", "", "intermediate feature extractor (e.g. tfidf+embed)")
	f.String("interm-model", "", "intermediate model weights file")
	f.String("final-extractor", "", "final feature extractor")
	f.String("final-model", "", "final ranking model file (RankLib text or .onnx)")
	f.Bool("add-rank-scores", false, "prepend original rank and score to the final features")
	f.String("mem-index", "", "forward index used by the feature extractors")
	f.String("embed-dir", "", "word embeddings directory")
	f.StringSlice("embed-files", nil, "word embedding files")
	f.StringSlice("high-order-files", nil, "high-order embedding files")
	f.String("giza-root-dir", "", "translation table directory")
	f.Int("giza-iter-qty", 0, "translation model iteration")
	f.String("sink", "", "comma-separated result sinks (trec, eval, kafka, none)")
	f.String("run-dir", "", "directory for run and feature files")
	f.String("run-name", "", "run name")
	f.String("stat-file", "", "file for the run statistics")

	return cmd
}

// applyRunFlags copies explicitly set flags into cfg.
func applyRunFlags(f *pflag.FlagSet, cfg *config.Config) {
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	list := func(name string, dst *[]string) {
		if f.Changed(name) {
			*dst, _ = f.GetStringSlice(name)
		}
	}

	str("provider", &cfg.Provider.Type)
	str("uri", &cfg.Provider.URI)
	str("collection", &cfg.Provider.Collection)
	num("min-should-match-pct", &cfg.Provider.MinShouldMatchPct)
	str("queries", &cfg.Queries.File)
	num("max-queries", &cfg.Queries.MaxQueries)
	str("num-ret", &cfg.Retrieval.NumRet)
	num("max-cand", &cfg.Retrieval.MaxCandQty)
	str("qrels", &cfg.Retrieval.QrelFile)
	num("min-relev-grade", &cfg.Retrieval.MinRelevGrade)
	num("threads", &cfg.Workers.Threads)
	str("interm-extractor", &cfg.Letor.Interm.Extractor)
	str("interm-model", &cfg.Letor.Interm.ModelFile)
	str("final-extractor", &cfg.Letor.Final.Extractor)
	str("final-model", &cfg.Letor.Final.ModelFile)
	if f.Changed("add-rank-scores") {
		cfg.Letor.Final.AddRankScores, _ = f.GetBool("add-rank-scores")
	}
	str("mem-index", &cfg.Resources.MemIndex)
	str("embed-dir", &cfg.Resources.EmbedDir)
	list("embed-files", &cfg.Resources.EmbedFiles)
	list("high-order-files", &cfg.Resources.HighOrderFiles)
	str("giza-root-dir", &cfg.Resources.GizaRootDir)
	num("giza-iter-qty", &cfg.Resources.GizaIterQty)
	str("sink", &cfg.Output.Sink)
	str("run-dir", &cfg.Output.RunDir)
	str("run-name", &cfg.Output.RunName)
	str("stat-file", &cfg.Output.StatFile)
}

func run(cmd *cobra.Command, cfg *config.Config) (err error) {
	ctx := cmd.Context()
	log := newLogger(cfg)

	queries, err := query.Load(ctx, cfg.Queries.File, cfg.Queries.MaxQueries, log)
	if err != nil {
		return err
	}

	r, err := pipeline.Setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	start := time.Now()
	if err := r.Run(ctx, queries); err != nil {
		return err
	}
	log.Info("All queries processed", "queries", len(queries), "took", time.Since(start))

	if err := r.Report(ctx, cfg); err != nil {
		return err
	}
	log.Info("Finished successfully")
	return nil
}
