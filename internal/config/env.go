package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use underscore delimiter (e.g., EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR
	// Default: ~/.cavepedia
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL
	// Default: sqlite:///{data_dir}/cavepedia.db
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// CORSAllowedOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ALLOWED_ORIGINS
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS"`

	// EmbeddingEndpoint configures the embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// RerankEndpoint configures the rerank service.
	RerankEndpoint EndpointEnv `envconfig:"RERANK_ENDPOINT"`

	// OCREndpoint configures the OCR model.
	OCREndpoint EndpointEnv `envconfig:"OCR_ENDPOINT"`

	Storage  StorageEnv  `envconfig:"STORAGE"`
	Pipeline PipelineEnv `envconfig:"PIPELINE"`
	Search   SearchEnv   `envconfig:"SEARCH"`

	// RedisURL enables the query-embedding cache.
	// Env: REDIS_URL
	RedisURL string `envconfig:"REDIS_URL"`

	// QueryCacheTTL is how long cached query embeddings live.
	// Env: QUERY_CACHE_TTL (default: 1h)
	QueryCacheTTL time.Duration `envconfig:"QUERY_CACHE_TTL" default:"1h"`
}

// EndpointEnv holds environment configuration for a model endpoint. Unset
// fields keep the per-endpoint defaults from NewAppConfig.
type EndpointEnv struct {
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`
	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT
	Timeout float64 `envconfig:"TIMEOUT"`
	// MaxRetries is the attempt budget.
	// Env: *_MAX_RETRIES
	MaxRetries int `envconfig:"MAX_RETRIES"`
	// InitialDelay is the first retry delay in seconds.
	// Env: *_INITIAL_DELAY
	InitialDelay float64 `envconfig:"INITIAL_DELAY"`
	// Env: *_BACKOFF_FACTOR
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR"`
	// Env: *_MAX_TOKENS
	MaxTokens int `envconfig:"MAX_TOKENS"`
	// Env: *_DIMENSIONS
	Dimensions int `envconfig:"DIMENSIONS"`
}

// StorageEnv holds environment configuration for object storage.
type StorageEnv struct {
	// Env: STORAGE_IMPORT_BUCKET (default: cavepediav2-import)
	ImportBucket string `envconfig:"IMPORT_BUCKET" default:"cavepediav2-import"`
	// Env: STORAGE_FILES_BUCKET (default: cavepediav2-files)
	FilesBucket string `envconfig:"FILES_BUCKET" default:"cavepediav2-files"`
	// Env: STORAGE_PAGES_BUCKET (default: cavepediav2-pages)
	PagesBucket string `envconfig:"PAGES_BUCKET" default:"cavepediav2-pages"`
	// Env: STORAGE_EMULATOR_HOST
	EmulatorHost string `envconfig:"EMULATOR_HOST"`
	// Env: STORAGE_CREDENTIALS_FILE
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`
	// Env: STORAGE_SIGNED_URL_TTL (default: 24h)
	SignedURLTTL time.Duration `envconfig:"SIGNED_URL_TTL" default:"24h"`
}

// PipelineEnv holds environment configuration for the ingestion loop.
type PipelineEnv struct {
	// Env: PIPELINE_ENABLED (default: true)
	Enabled bool `envconfig:"ENABLED" default:"true"`
	// Env: PIPELINE_INTERVAL_SECONDS (default: 300)
	IntervalSeconds float64 `envconfig:"INTERVAL_SECONDS" default:"300"`
	// Env: PIPELINE_OCR_BATCH_SIZE (default: 1000)
	OCRBatchSize int `envconfig:"OCR_BATCH_SIZE" default:"1000"`
	// Env: PIPELINE_OCR_MODE (default: batch)
	OCRMode string `envconfig:"OCR_MODE" default:"batch"`
	// Env: PIPELINE_SPLIT_PARALLELISM (default: 4)
	SplitParallelism int `envconfig:"SPLIT_PARALLELISM" default:"4"`
	// Env: PIPELINE_EMBED_CHUNK_SIZE (default: 100)
	EmbedChunkSize int `envconfig:"EMBED_CHUNK_SIZE" default:"100"`
}

// SearchEnv holds environment configuration for ranking.
type SearchEnv struct {
	// Env: SEARCH_TOP_N (default: 3)
	TopN int `envconfig:"TOP_N" default:"3"`
	// Env: SEARCH_MAX_CONTENT_LENGTH (default: 1500)
	MaxContentLength int `envconfig:"MAX_CONTENT_LENGTH" default:"1500"`
	// MinContentLength of 0 disables the candidate length filter.
	// Env: SEARCH_MIN_CONTENT_LENGTH (default: 100)
	MinContentLength int `envconfig:"MIN_CONTENT_LENGTH" default:"100"`
	// Env: SEARCH_BOOST_FACTOR (default: 1.3)
	BoostFactor float64 `envconfig:"BOOST_FACTOR" default:"1.3"`
	// Env: SEARCH_CANDIDATE_MULTIPLIER (default: 4)
	CandidateMultiplier int `envconfig:"CANDIDATE_MULTIPLIER" default:"4"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.CORSAllowedOrigins != "" {
		cfg = applyOption(cfg, WithCORSAllowedOrigins(ParseList(e.CORSAllowedOrigins)))
	}

	cfg = applyOption(cfg, WithEmbeddingEndpoint(e.EmbeddingEndpoint.apply(cfg.Embedding())))
	cfg = applyOption(cfg, WithRerankEndpoint(e.RerankEndpoint.apply(cfg.Rerank())))
	cfg = applyOption(cfg, WithOCREndpoint(e.OCREndpoint.apply(cfg.OCR())))

	cfg = applyOption(cfg, WithStorageConfig(e.Storage.ToStorageConfig()))
	cfg = applyOption(cfg, WithPipelineConfig(e.Pipeline.ToPipelineConfig()))
	cfg = applyOption(cfg, WithSearchConfig(e.Search.ToSearchConfig()))
	cfg = applyOption(cfg, WithCacheConfig(NewCacheConfig().WithRedisURL(e.RedisURL).WithTTL(e.QueryCacheTTL)))

	return cfg
}

// applyOption applies an option to the config.
func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

// apply overlays the set fields onto base.
func (e EndpointEnv) apply(base Endpoint) Endpoint {
	var opts []EndpointOption
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.Model != "" {
		opts = append(opts, WithModel(e.Model))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	if e.Timeout > 0 {
		opts = append(opts, WithTimeout(seconds(e.Timeout)))
	}
	if e.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(e.MaxRetries))
	}
	if e.InitialDelay > 0 {
		opts = append(opts, WithInitialDelay(seconds(e.InitialDelay)))
	}
	if e.BackoffFactor > 0 {
		opts = append(opts, WithBackoffFactor(e.BackoffFactor))
	}
	if e.MaxTokens > 0 {
		opts = append(opts, WithMaxTokens(e.MaxTokens))
	}
	if e.Dimensions > 0 {
		opts = append(opts, WithDimensions(e.Dimensions))
	}
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// ToStorageConfig converts StorageEnv to StorageConfig.
func (s StorageEnv) ToStorageConfig() StorageConfig {
	return NewStorageConfig().
		WithBuckets(s.ImportBucket, s.FilesBucket, s.PagesBucket).
		WithEmulatorHost(s.EmulatorHost).
		WithCredentialsFile(s.CredentialsFile).
		WithSignedURLTTL(s.SignedURLTTL)
}

// ToPipelineConfig converts PipelineEnv to PipelineConfig.
func (p PipelineEnv) ToPipelineConfig() PipelineConfig {
	return NewPipelineConfig().
		WithEnabled(p.Enabled).
		WithIntervalSeconds(p.IntervalSeconds).
		WithOCRBatchSize(p.OCRBatchSize).
		WithOCRMode(OCRMode(strings.ToLower(strings.TrimSpace(p.OCRMode)))).
		WithSplitParallelism(p.SplitParallelism).
		WithEmbedChunkSize(p.EmbedChunkSize)
}

// ToSearchConfig converts SearchEnv to SearchConfig.
func (s SearchEnv) ToSearchConfig() SearchConfig {
	return NewSearchConfig().
		WithTopN(s.TopN).
		WithMaxContentLength(s.MaxContentLength).
		WithMinContentLength(s.MinContentLength).
		WithBoostFactor(s.BoostFactor).
		WithCandidateMultiplier(s.CandidateMultiplier)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}
