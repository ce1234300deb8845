// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
)

// Candidate provider types.
const (
	ProviderBleve       = "bleve"
	ProviderBleveExpand = "bleve_expand"
	ProviderPostgres    = "postgres"
	ProviderQdrant      = "qdrant"
	ProviderChromem     = "chromem"
)

// Result sink types.
const (
	SinkTREC  = "trec"
	SinkEval  = "eval"
	SinkKafka = "kafka"
	SinkNone  = "none"
)

// Config holds all application configuration.
type Config struct {
	// Candidate provider configuration
	Provider ProviderConfig `yaml:"provider"`

	// Query batch configuration
	Queries QueriesConfig `yaml:"queries"`

	// Retrieval and result-size configuration
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Worker configuration
	Workers WorkersConfig `yaml:"workers"`

	// Learning-to-rank stages
	Letor LetorConfig `yaml:"letor"`

	// Shared resources used by extractors and providers
	Resources ResourcesConfig `yaml:"resources"`

	// Output configuration
	Output OutputConfig `yaml:"output"`

	// Redis persistence of run statistics
	Redis RedisConfig `yaml:"redis"`

	// Kafka result streaming
	Kafka KafkaConfig `yaml:"kafka"`

	// Prometheus Pushgateway
	Prometheus PrometheusConfig `yaml:"prometheus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// ProviderConfig selects and configures the candidate provider.
type ProviderConfig struct {
	Type              string        `envconfig:"LETOR_PROVIDER" yaml:"type"`
	URI               string        `envconfig:"LETOR_PROVIDER_URI" yaml:"uri"`
	Collection        string        `envconfig:"LETOR_PROVIDER_COLLECTION" yaml:"collection"`
	MinShouldMatchPct int           `envconfig:"LETOR_MIN_SHOULD_MATCH_PCT" yaml:"min_should_match_pct"`
	KNNFields         []string      `envconfig:"LETOR_KNN_FIELDS" yaml:"knn_fields"`
	ExpandQty         int           `envconfig:"LETOR_EXPAND_QTY" yaml:"expand_qty"`
	ExpandUseWeights  bool          `envconfig:"LETOR_EXPAND_USE_WEIGHTS" yaml:"expand_use_weights"`
	RateLimit         float64       `envconfig:"LETOR_PROVIDER_RATE_LIMIT" yaml:"rate_limit"` // queries/sec, 0 = unlimited
	Timeout           time.Duration `envconfig:"LETOR_PROVIDER_TIMEOUT" yaml:"timeout"`
}

// QueriesConfig locates the query batch.
type QueriesConfig struct {
	File       string `envconfig:"LETOR_QUERY_FILE" yaml:"file"`
	MaxQueries int    `envconfig:"LETOR_MAX_NUM_QUERY" yaml:"max_queries"` // 0 = all
}

// RetrievalConfig holds result sizes and relevance gating settings.
type RetrievalConfig struct {
	NumRet        string `envconfig:"LETOR_NUM_RET" yaml:"num_ret"` // e.g. "10,50,100"
	MaxCandQty    int    `envconfig:"LETOR_MAX_CAND_QTY" yaml:"max_cand_qty"`
	QrelFile      string `envconfig:"LETOR_QREL_FILE" yaml:"qrel_file"`
	MinRelevGrade int    `envconfig:"LETOR_MIN_RELEV_GRADE" yaml:"min_relev_grade"`
}

// WorkersConfig controls parallelism.
type WorkersConfig struct {
	Threads int `envconfig:"LETOR_THREADS" yaml:"threads"`

	// KNNThreads is read by the index command only: the number of goroutines
	// computing and inserting document vectors.
	KNNThreads int `envconfig:"LETOR_KNN_THREADS" yaml:"knn_threads"`
}

// LetorConfig configures the two reranking stages.
type LetorConfig struct {
	Interm StageConfig `yaml:"interm"`
	Final  StageConfig `yaml:"final"`
}

// StageConfig configures a single reranking stage.
type StageConfig struct {
	Extractor     string `yaml:"extractor"`
	ModelFile     string `yaml:"model_file"`
	AddRankScores bool   `yaml:"add_rank_scores"`
}

// ResourcesConfig locates resources shared by extractors and providers.
type ResourcesConfig struct {
	MemIndex       string   `envconfig:"LETOR_MEMINDEX" yaml:"mem_index"`
	GizaRootDir    string   `envconfig:"LETOR_GIZA_ROOT_DIR" yaml:"giza_root_dir"`
	GizaIterQty    int      `envconfig:"LETOR_GIZA_ITER_QTY" yaml:"giza_iter_qty"`
	EmbedDir       string   `envconfig:"LETOR_EMBED_DIR" yaml:"embed_dir"`
	EmbedFiles     []string `envconfig:"LETOR_EMBED_FILES" yaml:"embed_files"`
	HighOrderFiles []string `envconfig:"LETOR_HIGH_ORDER_FILES" yaml:"high_order_files"`
}

// OutputConfig controls where results and statistics go.
type OutputConfig struct {
	Sink     string `envconfig:"LETOR_SINK" yaml:"sink"`
	RunDir   string `envconfig:"LETOR_RUN_DIR" yaml:"run_dir"`
	RunName  string `envconfig:"LETOR_RUN_NAME" yaml:"run_name"`
	StatFile string `envconfig:"LETOR_SAVE_STAT_FILE" yaml:"stat_file"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL string `envconfig:"LETOR_REDIS_URL" yaml:"url"`
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers string `envconfig:"LETOR_KAFKA_BROKERS" yaml:"brokers"`
	Topic   string `envconfig:"LETOR_KAFKA_TOPIC" yaml:"topic"`
}

// PrometheusConfig holds Pushgateway settings.
type PrometheusConfig struct {
	PushURL string `envconfig:"LETOR_PROMETHEUS_PUSH_URL" yaml:"push_url"`
	Job     string `envconfig:"LETOR_PROMETHEUS_JOB" yaml:"job"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LETOR_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"LETOR_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from defaults, an optional YAML file and environment variables.
// The result is not validated; callers apply flag overrides first and then call Validate.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfig, "loading config file", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfig, "processing env config", err)
	}

	return cfg, nil
}

// LoadAndValidate loads and validates configuration in one step.
func LoadAndValidate(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Provider = ProviderConfig{
		KNNFields: []string{"text"},
		Timeout:   30 * time.Second,
	}

	cfg.Retrieval = RetrievalConfig{
		MinRelevGrade: 1,
	}

	cfg.Workers = WorkersConfig{
		Threads:    1,
		KNNThreads: 1,
	}

	cfg.Output = OutputConfig{
		Sink:    SinkTREC,
		RunDir:  "runs",
		RunName: "rice-letor",
	}

	cfg.Kafka = KafkaConfig{
		Topic: "letor.results",
	}

	cfg.Prometheus = PrometheusConfig{
		Job: "rice_letor",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Provider validation
	if c.Provider.Type == "" {
		errs = append(errs, "specify the candidate provider type")
	} else if !slices.Contains(ProviderTypes(), strings.ToLower(c.Provider.Type)) {
		errs = append(errs, fmt.Sprintf("wrong candidate record provider type: '%s' (must be one of %s)",
			c.Provider.Type, strings.Join(ProviderTypes(), ", ")))
	}
	if c.Provider.URI == "" {
		errs = append(errs, "specify the provider URI")
	}
	if c.Provider.MinShouldMatchPct < 0 || c.Provider.MinShouldMatchPct >= 100 {
		errs = append(errs, fmt.Sprintf("the percentage of query words to match isn't an integer from 0 to 99: '%d'",
			c.Provider.MinShouldMatchPct))
	}
	if c.Provider.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	switch strings.ToLower(c.Provider.Type) {
	case ProviderBleveExpand:
		if c.Provider.ExpandQty <= 0 {
			errs = append(errs, "specify a positive number of query-expansion terms (expand_qty)")
		}
		if c.Resources.GizaRootDir == "" {
			errs = append(errs, "specify the translation table root directory (giza_root_dir)")
		}
		if c.Resources.GizaIterQty <= 0 {
			errs = append(errs, "specify the number of translation model iterations (giza_iter_qty)")
		}
	case ProviderQdrant, ProviderChromem:
		if c.Resources.EmbedDir == "" || len(c.Resources.EmbedFiles) == 0 {
			errs = append(errs, "KNN providers need word embeddings: specify embed_dir and embed_files")
		}
		if len(c.Provider.KNNFields) == 0 {
			errs = append(errs, "specify the query fields used to build KNN queries (knn_fields)")
		}
	}

	// Query validation
	if c.Queries.File == "" {
		errs = append(errs, "specify the query file")
	}
	if c.Queries.MaxQueries < 0 {
		errs = append(errs, "max_queries must not be negative")
	}

	// Result sizes
	if c.Retrieval.NumRet == "" {
		errs = append(errs, "specify the number of results to return (num_ret)")
	} else if _, err := ParseSizes(c.Retrieval.NumRet); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Retrieval.MinRelevGrade < 1 {
		errs = append(errs, fmt.Sprintf("minimum relevance grade must be positive: '%d'", c.Retrieval.MinRelevGrade))
	}
	if c.Retrieval.MaxCandQty < 0 {
		errs = append(errs, "max_cand_qty must not be negative")
	}

	// Worker validation
	if c.Workers.Threads < 1 {
		errs = append(errs, fmt.Sprintf("number of threads must be positive: '%d'", c.Workers.Threads))
	}

	// Reranking stages
	if c.Letor.Interm.Extractor != "" {
		if c.Letor.Interm.ModelFile == "" {
			errs = append(errs, "specify the intermediate model (weights) file")
		}
		if c.Retrieval.MaxCandQty == 0 {
			errs = append(errs, "specify the number of candidate records (max_cand_qty) for the intermediate reranker")
		}
	}
	if c.Letor.Final.Extractor == "" && c.Letor.Final.ModelFile != "" {
		errs = append(errs, "a final model file needs a final extractor")
	}
	if c.Letor.Final.Extractor == "" && c.Letor.Final.AddRankScores {
		errs = append(errs, "add_rank_scores needs a final extractor")
	}

	// Output validation
	validSinks := map[string]bool{SinkTREC: true, SinkEval: true, SinkKafka: true, SinkNone: true}
	for _, s := range c.Sinks() {
		if !validSinks[s] {
			errs = append(errs, fmt.Sprintf("invalid sink: %s (must be trec, eval, kafka, or none)", s))
			continue
		}
		switch s {
		case SinkTREC:
			if c.Output.RunDir == "" {
				errs = append(errs, "the trec sink needs run_dir")
			}
		case SinkEval:
			if c.Retrieval.QrelFile == "" {
				errs = append(errs, "the eval sink needs qrel_file")
			}
		case SinkKafka:
			if c.Kafka.Brokers == "" {
				errs = append(errs, "the kafka sink needs kafka brokers")
			}
		}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return apperrors.ConfigError(fmt.Sprintf("config validation failed:\n  - %s", strings.Join(errs, "\n  - ")))
	}

	return nil
}

// ProviderTypes lists the supported candidate provider types.
func ProviderTypes() []string {
	return []string{ProviderBleve, ProviderBleveExpand, ProviderPostgres, ProviderQdrant, ProviderChromem}
}

// ParseSizes parses a comma-separated list of positive result sizes.
// The result is sorted ascending with duplicates removed.
func ParseSizes(s string) ([]int, error) {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, apperrors.ConfigErrorf("number of candidates isn't integer: '%s'", part)
		}
		if n <= 0 {
			return nil, apperrors.ConfigError("specify only positive number of candidate entries")
		}
		sizes = append(sizes, n)
	}
	slices.Sort(sizes)
	return slices.Compact(sizes), nil
}

// RequestedSizes returns the validated result sizes.
func (c *Config) RequestedSizes() []int {
	sizes, _ := ParseSizes(c.Retrieval.NumRet)
	return sizes
}

// MaxSize returns the largest requested result size.
func (c *Config) MaxSize() int {
	sizes := c.RequestedSizes()
	if len(sizes) == 0 {
		return 0
	}
	return sizes[len(sizes)-1]
}

// MaxCandidates returns the number of candidates to retrieve per query.
// The override only applies when an intermediate reranker narrows the pool
// and can never be smaller than the largest requested size.
func (c *Config) MaxCandidates() int {
	maxSize := c.MaxSize()
	if c.Letor.Interm.Extractor == "" {
		return maxSize
	}
	return max(c.Retrieval.MaxCandQty, maxSize)
}

// Sinks returns the configured sink types. Several may be given comma-separated.
func (c *Config) Sinks() []string {
	var sinks []string
	for _, s := range strings.Split(c.Output.Sink, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sinks = append(sinks, s)
		}
	}
	return sinks
}

// KafkaBrokers returns the parsed broker list.
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
