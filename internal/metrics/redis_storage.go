package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage persists run summaries in Redis.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage creates a new Redis storage backend.
// Returns error if connection fails.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		prefix: "rice:letor:",
		ttl:    30 * 24 * time.Hour,
	}, nil
}

func (rs *RedisStorage) runKey(run string) string {
	return rs.prefix + "run:" + run
}

func (rs *RedisStorage) indexKey() string {
	return rs.prefix + "runs"
}

// SaveSummary stores s as a hash keyed by run name and records the run in
// a sorted set ordered by save time.
func (rs *RedisStorage) SaveSummary(ctx context.Context, run string, s Summary) error {
	key := rs.runKey(run)
	now := time.Now()

	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, summaryFields(s))
	pipe.Expire(ctx, key, rs.ttl)
	pipe.ZAdd(ctx, rs.indexKey(), redis.Z{Score: float64(now.Unix()), Member: run})
	pipe.ZRemRangeByScore(ctx, rs.indexKey(), "-inf", strconv.FormatInt(now.Add(-rs.ttl).Unix(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving run summary: %w", err)
	}
	return nil
}

// LoadSummary reads a previously saved summary.
func (rs *RedisStorage) LoadSummary(ctx context.Context, run string) (Summary, error) {
	vals, err := rs.client.HGetAll(ctx, rs.runKey(run)).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("loading run summary: %w", err)
	}
	if len(vals) == 0 {
		return Summary{}, fmt.Errorf("run %q not found", run)
	}
	return parseSummaryFields(vals)
}

// ListRuns returns run names saved since the given time, oldest first.
func (rs *RedisStorage) ListRuns(ctx context.Context, since time.Time) ([]string, error) {
	runs, err := rs.client.ZRangeByScore(ctx, rs.indexKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a saved run.
func (rs *RedisStorage) DeleteRun(ctx context.Context, run string) error {
	pipe := rs.client.TxPipeline()
	pipe.Del(ctx, rs.runKey(run))
	pipe.ZRem(ctx, rs.indexKey(), run)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	return nil
}

// SetTTL sets how long saved runs are kept.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}

func summaryFields(s Summary) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return map[string]string{
		"queries":            strconv.FormatInt(s.Queries, 10),
		"query_time_mean":    f(s.QueryTime.Mean),
		"query_time_std":     f(s.QueryTime.StdDev),
		"num_found_mean":     f(s.NumFound.Mean),
		"num_found_std":      f(s.NumFound.StdDev),
		"interm_rerank_mean": f(s.IntermRerankTime.Mean),
		"interm_rerank_std":  f(s.IntermRerankTime.StdDev),
		"final_rerank_mean":  f(s.FinalRerankTime.Mean),
		"final_rerank_std":   f(s.FinalRerankTime.StdDev),
		"total_time":         f(s.TotalTime),
		"has_interm":         strconv.FormatBool(s.HasInterm),
		"has_final":          strconv.FormatBool(s.HasFinal),
	}
}

func parseSummaryFields(vals map[string]string) (Summary, error) {
	var (
		s   Summary
		err error
	)
	num := func(key string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = strconv.ParseFloat(vals[key], 64)
		if err != nil {
			err = fmt.Errorf("field %s: %w", key, err)
		}
		return v
	}

	s.QueryTime = Stat{Mean: num("query_time_mean"), StdDev: num("query_time_std")}
	s.NumFound = Stat{Mean: num("num_found_mean"), StdDev: num("num_found_std")}
	s.IntermRerankTime = Stat{Mean: num("interm_rerank_mean"), StdDev: num("interm_rerank_std")}
	s.FinalRerankTime = Stat{Mean: num("final_rerank_mean"), StdDev: num("final_rerank_std")}
	s.TotalTime = num("total_time")
	s.Queries = int64(num("queries"))
	if err != nil {
		return Summary{}, err
	}

	s.HasInterm, _ = strconv.ParseBool(vals["has_interm"])
	s.HasFinal, _ = strconv.ParseBool(vals["has_final"])
	return s, nil
}
