// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 8080
	DefaultLogLevel = "INFO"

	DefaultEmbeddingModel         = "embed-v4.0"
	DefaultEmbeddingDimensions    = 1536
	DefaultEmbeddingMaxRetries    = 3
	DefaultEmbeddingInitialDelay  = time.Second
	DefaultEmbeddingBackoffFactor = 30.0

	DefaultRerankModel = "rerank-v3.5"

	DefaultOCRModel         = "claude-haiku-4-5"
	DefaultOCRMaxRetries    = 5
	DefaultOCRInitialDelay  = time.Second
	DefaultOCRBackoffFactor = 2.0
	DefaultOCRMaxTokens     = 4000

	DefaultEndpointTimeout = 60 * time.Second

	DefaultImportBucket = "cavepediav2-import"
	DefaultFilesBucket  = "cavepediav2-files"
	DefaultPagesBucket  = "cavepediav2-pages"
	DefaultSignedURLTTL = 24 * time.Hour

	DefaultPipelineInterval  = 300.0 // seconds
	DefaultOCRBatchSize      = 1000
	DefaultSplitParallelism  = 4
	DefaultEmbedChunkSize    = 100
	DefaultTopN              = 3
	DefaultMaxContentLength  = 1500
	DefaultMinContentLength  = 100
	DefaultBoostFactor       = 1.3
	DefaultCandidateMultiple = 4
	DefaultQueryCacheTTL     = time.Hour
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// OCRMode selects how pending units reach the OCR provider.
type OCRMode string

// OCRMode values.
const (
	OCRModeBatch OCRMode = "batch"
	OCRModeSync  OCRMode = "sync"
)

// Endpoint configures a remote model service.
type Endpoint struct {
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	maxTokens     int
	dimensions    int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{timeout: DefaultEndpointTimeout}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the attempt budget for retried calls.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the wait after the first failed attempt.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// MaxTokens returns the completion token limit.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// Dimensions returns the embedding vector length.
func (e Endpoint) Dimensions() int { return e.dimensions }

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the attempt budget.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// WithDimensions sets the embedding vector length.
func WithDimensions(n int) EndpointOption {
	return func(e *Endpoint) { e.dimensions = n }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// StorageConfig names the buckets and how to reach them.
type StorageConfig struct {
	importBucket    string
	filesBucket     string
	pagesBucket     string
	emulatorHost    string
	credentialsFile string
	signedURLTTL    time.Duration
}

// NewStorageConfig creates a StorageConfig with the default bucket names.
func NewStorageConfig() StorageConfig {
	return StorageConfig{
		importBucket: DefaultImportBucket,
		filesBucket:  DefaultFilesBucket,
		pagesBucket:  DefaultPagesBucket,
		signedURLTTL: DefaultSignedURLTTL,
	}
}

// ImportBucket returns the bucket new uploads land in.
func (s StorageConfig) ImportBucket() string { return s.importBucket }

// FilesBucket returns the bucket that holds imported originals.
func (s StorageConfig) FilesBucket() string { return s.filesBucket }

// PagesBucket returns the bucket that holds single-page PDFs.
func (s StorageConfig) PagesBucket() string { return s.pagesBucket }

// EmulatorHost returns the storage emulator address, if any.
func (s StorageConfig) EmulatorHost() string { return s.emulatorHost }

// CredentialsFile returns the service account key path, if any.
func (s StorageConfig) CredentialsFile() string { return s.credentialsFile }

// SignedURLTTL returns how long OCR download URLs stay valid.
func (s StorageConfig) SignedURLTTL() time.Duration { return s.signedURLTTL }

// WithBuckets returns a new config with the given bucket names. Empty names
// keep the current value.
func (s StorageConfig) WithBuckets(importBucket, filesBucket, pagesBucket string) StorageConfig {
	if importBucket != "" {
		s.importBucket = importBucket
	}
	if filesBucket != "" {
		s.filesBucket = filesBucket
	}
	if pagesBucket != "" {
		s.pagesBucket = pagesBucket
	}
	return s
}

// WithEmulatorHost returns a new config pointing at a storage emulator.
func (s StorageConfig) WithEmulatorHost(host string) StorageConfig {
	s.emulatorHost = host
	return s
}

// WithCredentialsFile returns a new config using a service account key file.
func (s StorageConfig) WithCredentialsFile(path string) StorageConfig {
	s.credentialsFile = path
	return s
}

// WithSignedURLTTL returns a new config with the given URL lifetime.
func (s StorageConfig) WithSignedURLTTL(d time.Duration) StorageConfig {
	if d > 0 {
		s.signedURLTTL = d
	}
	return s
}

// PipelineConfig configures the ingestion loop.
type PipelineConfig struct {
	enabled          bool
	intervalSeconds  float64
	ocrBatchSize     int
	ocrMode          OCRMode
	splitParallelism int
	embedChunkSize   int
}

// NewPipelineConfig creates a PipelineConfig with defaults.
func NewPipelineConfig() PipelineConfig {
	return PipelineConfig{
		enabled:          true,
		intervalSeconds:  DefaultPipelineInterval,
		ocrBatchSize:     DefaultOCRBatchSize,
		ocrMode:          OCRModeBatch,
		splitParallelism: DefaultSplitParallelism,
		embedChunkSize:   DefaultEmbedChunkSize,
	}
}

// Enabled returns whether serve runs the pipeline in-process.
func (p PipelineConfig) Enabled() bool { return p.enabled }

// Interval returns the wait between cycles.
func (p PipelineConfig) Interval() time.Duration {
	return time.Duration(p.intervalSeconds * float64(time.Second))
}

// OCRBatchSize returns the most units submitted per cycle.
func (p PipelineConfig) OCRBatchSize() int { return p.ocrBatchSize }

// OCRMode returns the OCR submission mode.
func (p PipelineConfig) OCRMode() OCRMode { return p.ocrMode }

// SplitParallelism returns how many files are split at once.
func (p PipelineConfig) SplitParallelism() int { return p.splitParallelism }

// EmbedChunkSize returns how many pending units are loaded per embed query.
func (p PipelineConfig) EmbedChunkSize() int { return p.embedChunkSize }

// WithEnabled returns a new config with the specified enabled state.
func (p PipelineConfig) WithEnabled(enabled bool) PipelineConfig {
	p.enabled = enabled
	return p
}

// WithIntervalSeconds returns a new config with the specified interval.
func (p PipelineConfig) WithIntervalSeconds(seconds float64) PipelineConfig {
	if seconds > 0 {
		p.intervalSeconds = seconds
	}
	return p
}

// WithOCRBatchSize returns a new config with the specified batch size.
func (p PipelineConfig) WithOCRBatchSize(n int) PipelineConfig {
	if n > 0 {
		p.ocrBatchSize = n
	}
	return p
}

// WithOCRMode returns a new config with the specified OCR mode.
func (p PipelineConfig) WithOCRMode(mode OCRMode) PipelineConfig {
	p.ocrMode = mode
	return p
}

// WithSplitParallelism returns a new config with the specified parallelism.
func (p PipelineConfig) WithSplitParallelism(n int) PipelineConfig {
	if n > 0 {
		p.splitParallelism = n
	}
	return p
}

// WithEmbedChunkSize returns a new config with the specified chunk size.
func (p PipelineConfig) WithEmbedChunkSize(n int) PipelineConfig {
	if n > 0 {
		p.embedChunkSize = n
	}
	return p
}

// SearchConfig holds the ranking knobs.
type SearchConfig struct {
	topN                int
	maxContentLength    int
	minContentLength    int
	boostFactor         float64
	candidateMultiplier int
}

// NewSearchConfig creates a SearchConfig with defaults.
func NewSearchConfig() SearchConfig {
	return SearchConfig{
		topN:                DefaultTopN,
		maxContentLength:    DefaultMaxContentLength,
		minContentLength:    DefaultMinContentLength,
		boostFactor:         DefaultBoostFactor,
		candidateMultiplier: DefaultCandidateMultiple,
	}
}

// TopN returns the default result count.
func (s SearchConfig) TopN() int { return s.topN }

// MaxContentLength returns the default per-result character limit.
func (s SearchConfig) MaxContentLength() int { return s.maxContentLength }

// MinContentLength returns the candidate length filter. Zero disables it.
func (s SearchConfig) MinContentLength() int { return s.minContentLength }

// BoostFactor returns the priority prefix multiplier.
func (s SearchConfig) BoostFactor() float64 { return s.boostFactor }

// CandidateMultiplier returns how many candidates are fetched per result.
func (s SearchConfig) CandidateMultiplier() int { return s.candidateMultiplier }

// WithTopN returns a new config with the given default result count.
func (s SearchConfig) WithTopN(n int) SearchConfig {
	if n > 0 {
		s.topN = n
	}
	return s
}

// WithMaxContentLength returns a new config with the given content limit.
func (s SearchConfig) WithMaxContentLength(n int) SearchConfig {
	if n > 0 {
		s.maxContentLength = n
	}
	return s
}

// WithMinContentLength returns a new config with the given length filter.
func (s SearchConfig) WithMinContentLength(n int) SearchConfig {
	if n >= 0 {
		s.minContentLength = n
	}
	return s
}

// WithBoostFactor returns a new config with the given boost.
func (s SearchConfig) WithBoostFactor(f float64) SearchConfig {
	if f > 0 {
		s.boostFactor = f
	}
	return s
}

// WithCandidateMultiplier returns a new config with the given multiplier.
func (s SearchConfig) WithCandidateMultiplier(n int) SearchConfig {
	if n > 0 {
		s.candidateMultiplier = n
	}
	return s
}

// CacheConfig configures the optional query-embedding cache.
type CacheConfig struct {
	redisURL string
	ttl      time.Duration
}

// NewCacheConfig creates a disabled CacheConfig.
func NewCacheConfig() CacheConfig {
	return CacheConfig{ttl: DefaultQueryCacheTTL}
}

// RedisURL returns the Redis connection URL.
func (c CacheConfig) RedisURL() string { return c.redisURL }

// TTL returns how long a cached embedding is reused.
func (c CacheConfig) TTL() time.Duration { return c.ttl }

// Enabled reports whether a Redis URL was configured.
func (c CacheConfig) Enabled() bool { return c.redisURL != "" }

// WithRedisURL returns a new config using the given Redis URL.
func (c CacheConfig) WithRedisURL(url string) CacheConfig {
	c.redisURL = url
	return c
}

// WithTTL returns a new config with the given TTL.
func (c CacheConfig) WithTTL(d time.Duration) CacheConfig {
	if d > 0 {
		c.ttl = d
	}
	return c
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host               string
	port               int
	dataDir            string
	dbURL              string
	logLevel           string
	logFormat          LogFormat
	corsAllowedOrigins []string
	embedding          Endpoint
	rerank             Endpoint
	ocr                Endpoint
	storage            StorageConfig
	pipeline           PipelineConfig
	search             SearchConfig
	cache              CacheConfig
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cavepedia"
	}
	return filepath.Join(home, ".cavepedia")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:      DefaultHost,
		port:      DefaultPort,
		dataDir:   dataDir,
		dbURL:     "sqlite:///" + filepath.Join(dataDir, "cavepedia.db"),
		logLevel:  DefaultLogLevel,
		logFormat: LogFormatPretty,
		embedding: NewEndpointWithOptions(
			WithModel(DefaultEmbeddingModel),
			WithDimensions(DefaultEmbeddingDimensions),
			WithMaxRetries(DefaultEmbeddingMaxRetries),
			WithInitialDelay(DefaultEmbeddingInitialDelay),
			WithBackoffFactor(DefaultEmbeddingBackoffFactor),
		),
		rerank: NewEndpointWithOptions(WithModel(DefaultRerankModel)),
		ocr: NewEndpointWithOptions(
			WithModel(DefaultOCRModel),
			WithMaxRetries(DefaultOCRMaxRetries),
			WithInitialDelay(DefaultOCRInitialDelay),
			WithBackoffFactor(DefaultOCRBackoffFactor),
			WithMaxTokens(DefaultOCRMaxTokens),
		),
		storage:  NewStorageConfig(),
		pipeline: NewPipelineConfig(),
		search:   NewSearchConfig(),
		cache:    NewCacheConfig(),
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// CORSAllowedOrigins returns the origins allowed to call the HTTP surface.
func (c AppConfig) CORSAllowedOrigins() []string {
	origins := make([]string, len(c.corsAllowedOrigins))
	copy(origins, c.corsAllowedOrigins)
	return origins
}

// Embedding returns the embedding endpoint config.
func (c AppConfig) Embedding() Endpoint { return c.embedding }

// Rerank returns the rerank endpoint config.
func (c AppConfig) Rerank() Endpoint { return c.rerank }

// OCR returns the OCR endpoint config.
func (c AppConfig) OCR() Endpoint { return c.ocr }

// Storage returns the object storage config.
func (c AppConfig) Storage() StorageConfig { return c.storage }

// Pipeline returns the ingestion loop config.
func (c AppConfig) Pipeline() PipelineConfig { return c.pipeline }

// Search returns the ranking config.
func (c AppConfig) Search() SearchConfig { return c.search }

// Cache returns the query cache config.
func (c AppConfig) Cache() CacheConfig { return c.cache }

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		if c.dbURL == "" || strings.HasSuffix(c.dbURL, "cavepedia.db") {
			c.dbURL = "sqlite:///" + filepath.Join(dir, "cavepedia.db")
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithCORSAllowedOrigins sets the allowed CORS origins.
func WithCORSAllowedOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsAllowedOrigins = make([]string, len(origins))
		copy(c.corsAllowedOrigins, origins)
	}
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embedding = e }
}

// WithRerankEndpoint sets the rerank endpoint.
func WithRerankEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.rerank = e }
}

// WithOCREndpoint sets the OCR endpoint.
func WithOCREndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.ocr = e }
}

// WithStorageConfig sets the storage config.
func WithStorageConfig(s StorageConfig) AppConfigOption {
	return func(c *AppConfig) { c.storage = s }
}

// WithPipelineConfig sets the pipeline config.
func WithPipelineConfig(p PipelineConfig) AppConfigOption {
	return func(c *AppConfig) { c.pipeline = p }
}

// WithSearchConfig sets the search config.
func WithSearchConfig(s SearchConfig) AppConfigOption {
	return func(c *AppConfig) { c.search = s }
}

// WithCacheConfig sets the cache config.
func WithCacheConfig(cc CacheConfig) AppConfigOption {
	return func(c *AppConfig) { c.cache = cc }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Need names a group of settings a command depends on.
type Need int

// Need values.
const (
	NeedEmbedding Need = iota
	NeedRerank
	NeedOCR
	NeedStorage
)

// Validate reports every missing setting the given needs require, joined
// into one error.
func (c AppConfig) Validate(needs ...Need) error {
	var errs []error
	for _, n := range needs {
		switch n {
		case NeedEmbedding:
			if c.embedding.baseURL == "" {
				errs = append(errs, errors.New("EMBEDDING_ENDPOINT_BASE_URL is required"))
			}
			if c.embedding.apiKey == "" {
				errs = append(errs, errors.New("EMBEDDING_ENDPOINT_API_KEY is required"))
			}
			if c.embedding.dimensions <= 0 {
				errs = append(errs, errors.New("EMBEDDING_ENDPOINT_DIMENSIONS must be positive"))
			}
		case NeedRerank:
			if c.rerank.apiKey == "" {
				errs = append(errs, errors.New("RERANK_ENDPOINT_API_KEY is required"))
			}
		case NeedOCR:
			if c.ocr.apiKey == "" {
				errs = append(errs, errors.New("OCR_ENDPOINT_API_KEY is required"))
			}
			if c.pipeline.ocrMode != OCRModeBatch && c.pipeline.ocrMode != OCRModeSync {
				errs = append(errs, fmt.Errorf("PIPELINE_OCR_MODE must be %q or %q, got %q", OCRModeBatch, OCRModeSync, c.pipeline.ocrMode))
			}
		case NeedStorage:
			if c.storage.importBucket == "" || c.storage.filesBucket == "" || c.storage.pagesBucket == "" {
				errs = append(errs, errors.New("STORAGE_IMPORT_BUCKET, STORAGE_FILES_BUCKET and STORAGE_PAGES_BUCKET are required"))
			}
		}
	}
	return errors.Join(errs...)
}

// LogAttrs returns slog attributes for logging the configuration.
// API keys are never included.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.String("embedding_base_url", c.embedding.baseURL),
		slog.String("embedding_model", c.embedding.model),
		slog.Int("embedding_dimensions", c.embedding.dimensions),
		slog.String("rerank_model", c.rerank.model),
		slog.String("ocr_model", c.ocr.model),
		slog.String("ocr_mode", string(c.pipeline.ocrMode)),
		slog.String("pages_bucket", c.storage.pagesBucket),
		slog.Bool("pipeline_enabled", c.pipeline.enabled),
		slog.Duration("pipeline_interval", c.pipeline.Interval()),
		slog.Bool("query_cache", c.cache.Enabled()),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseList parses a comma-separated string, dropping blanks.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
