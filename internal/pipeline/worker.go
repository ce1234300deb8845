package pipeline

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"github.com/ricesearch/rice-letor/internal/candidate"
	"github.com/ricesearch/rice-letor/internal/letor"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
	"github.com/ricesearch/rice-letor/internal/query"
	"github.com/ricesearch/rice-letor/internal/sink"
)

// NoRelevant is the gating rank of a query whose candidates are all non-relevant.
const NoRelevant = math.MaxInt

type worker struct {
	id       int
	r        *Runner
	provider candidate.Provider
	log      *logger.Logger
}

func (w *worker) run(ctx context.Context, queries []query.Record, n int) error {
	for i := w.id; i < len(queries); i += n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.process(ctx, i, queries[i]); err != nil {
			return err
		}
	}
	w.log.Info("Worker finished")
	return nil
}

// process runs every stage for query number num.
func (w *worker) process(ctx context.Context, num int, rec query.Record) error {
	r := w.r

	fields, err := query.Parse(rec)
	if err != nil {
		w.log.Error("Parsing error", "query_num", num, "record", string(rec))
		return err
	}
	qid := fields.ID()
	log := w.log.WithQuery(qid)

	// Retrieval
	start := time.Now()
	set, err := w.provider.Candidates(ctx, num, fields, r.maxCand)
	if err != nil {
		return apperrors.BackendError("retrieving candidates for query "+qid, err)
	}
	set.Clamp(r.maxCand)
	set.SnapshotOriginal()
	took := msSince(start)

	log.Info("Obtained results",
		"query_num", num,
		"took_ms", took,
		"asked", r.maxCand,
		"got", len(set.Entries),
		"found", set.NumFound,
	)
	r.stats.QueryTime.Add(took)
	r.stats.NumFound.Add(float64(set.NumFound))

	entries := set.Entries
	var feats map[string]letor.Vector

	if r.interm != nil {
		start = time.Now()
		entries, feats, err = w.intermRerank(ctx, qid, fields, entries)
		if err != nil {
			return err
		}
		took = msSince(start)
		log.Info("Intermediate reranking done", "query_num", num, "took_ms", took, "kept", len(entries))
		r.stats.IntermRerankTime.Add(took)
	}

	minRank := w.minRelevantRank(qid, entries)

	if r.final != nil {
		start = time.Now()
		feats, err = w.finalRerank(ctx, qid, fields, entries)
		if err != nil {
			return err
		}
		took = msSince(start)
		log.Info("Final reranking done", "query_num", num, "took_ms", took)
		r.stats.FinalRerankTime.Add(took)
	}

	for _, k := range r.sizes {
		if k < minRank {
			continue
		}
		cur := slices.Clone(entries[:min(k, len(entries))])
		sortByScore(cur)
		res := sink.Result{
			QueryID:  qid,
			Fields:   fields,
			Entries:  cur,
			NumRet:   k,
			Features: feats,
		}
		if err := r.emit(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// intermRerank scores entries with the weight vector, sorts them and keeps the
// best maxSize. Vectors of dropped entries are removed from the returned map.
func (w *worker) intermRerank(ctx context.Context, qid string, fields query.Fields, entries []candidate.Entry) ([]candidate.Entry, map[string]letor.Vector, error) {
	stage := w.r.interm

	feats, err := extract(ctx, stage.Extractor, entries, fields, qid)
	if err != nil {
		return nil, nil, err
	}

	for i := range entries {
		e := &entries[i]
		v := feats[e.DocID]
		e.Score = v.Dot(stage.Weights)
		if !letor.IsFinite(e.Score) {
			w.log.Error("Non-finite score",
				"stage", "intermediate",
				"query_id", qid,
				"doc_id", e.DocID,
				"features", v.String(),
				"weights", stage.Weights.String(),
			)
			return nil, nil, apperrors.NonFiniteScoreError("intermediate", e.DocID, qid)
		}
	}

	sortByScore(entries)
	if len(entries) > w.r.maxSize {
		for _, e := range entries[w.r.maxSize:] {
			delete(feats, e.DocID)
		}
		entries = entries[:w.r.maxSize]
	}
	return entries, feats, nil
}

// finalRerank computes the final features and, with a model, the final scores.
// Entries keep their order; sorting happens per result size.
func (w *worker) finalRerank(ctx context.Context, qid string, fields query.Fields, entries []candidate.Entry) (map[string]letor.Vector, error) {
	stage := w.r.final

	if len(entries) > w.r.maxSize {
		return nil, apperrors.InternalError("more candidates than the largest result size reached the final stage", nil)
	}

	feats, err := extract(ctx, stage.Extractor, entries, fields, qid)
	if err != nil {
		return nil, err
	}

	if stage.AddRankScores {
		for _, e := range entries {
			feats[e.DocID] = feats[e.DocID].WithRankScore(e.OrigRank, e.OrigScore)
		}
	}

	if stage.Model == nil {
		return feats, nil
	}

	for i := range entries {
		e := &entries[i]
		v := feats[e.DocID]
		score, err := stage.Model.Score(v)
		if err != nil {
			return nil, apperrors.BackendError("scoring document "+e.DocID+" of query "+qid, err)
		}
		if !letor.IsFinite(score) {
			w.log.Error("Non-finite score",
				"stage", "final",
				"query_id", qid,
				"doc_id", e.DocID,
				"features", v.String(),
			)
			return nil, apperrors.NonFiniteScoreError("final", e.DocID, qid)
		}
		e.Score = score
	}
	return feats, nil
}

// minRelevantRank returns the index of the first relevant entry and marks it.
// Without judgments it is 0; when nothing is relevant it is NoRelevant.
func (w *worker) minRelevantRank(qid string, entries []candidate.Entry) int {
	j := w.r.judgments
	if j == nil {
		return 0
	}
	for i := range entries {
		if j.Relevant(qid, entries[i].DocID, w.r.minGrade) {
			entries[i].IsRelevant = true
			return i
		}
	}
	return NoRelevant
}

// extract runs one batch extraction and checks that every entry got a vector.
func extract(ctx context.Context, ext letor.Extractor, entries []candidate.Entry, fields query.Fields, qid string) (map[string]letor.Vector, error) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.DocID
	}

	feats, err := ext.Features(ctx, ids, fields)
	if err != nil {
		return nil, apperrors.BackendError("extracting features for query "+qid, err)
	}
	qty := ext.FeatureQty()
	for _, id := range ids {
		v, ok := feats[id]
		if !ok {
			return nil, apperrors.BackendError("no features for document "+id+" of query "+qid, nil)
		}
		if len(v) != qty {
			return nil, apperrors.BackendError("wrong number of features for document "+id, nil)
		}
	}
	return feats, nil
}

// sortByScore orders entries by descending score, keeping the current order on ties.
func sortByScore(entries []candidate.Entry) {
	slices.SortStableFunc(entries, func(a, b candidate.Entry) int {
		return cmp.Compare(b.Score, a.Score)
	})
}
