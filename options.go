package cavepedia

import (
	"io"
	"log/slog"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/search"
	"github.com/cavepedia/cavepedia/internal/config"
)

// OCR is what the ingestion pipeline needs from an OCR provider: batch
// submission for the backlog and single-page extraction for sync mode.
type OCR interface {
	document.BatchOCR
	document.TextExtractor
}

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	app                    config.AppConfig
	logger                 *slog.Logger
	objects                document.ObjectStore
	splitter               document.Splitter
	embedder               search.Embedder
	reranker               search.Reranker
	ocr                    OCR
	closers                []io.Closer
	skipProviderValidation bool
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		app: config.NewAppConfig(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the whole application configuration, typically one
// loaded from the environment.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
	}
}

// WithSQLite stores metadata and embeddings in a SQLite file.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDBURL("sqlite:///" + path))
	}
}

// WithPostgres stores metadata and embeddings in PostgreSQL with pgvector.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDBURL(dsn))
	}
}

// WithDataDir sets the data directory for the default SQLite database.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDataDir(dir))
	}
}

// WithPipelineConfig sets the ingestion pipeline configuration.
func WithPipelineConfig(p config.PipelineConfig) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithPipelineConfig(p))
	}
}

// WithSearchConfig sets the retrieval configuration.
func WithSearchConfig(s config.SearchConfig) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithSearchConfig(s))
	}
}

// WithStorageConfig sets bucket names and object store settings.
func WithStorageConfig(s config.StorageConfig) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithStorageConfig(s))
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithObjectStore replaces the GCS object store.
func WithObjectStore(s document.ObjectStore) Option {
	return func(c *clientConfig) {
		c.objects = s
	}
}

// WithSplitter replaces the pdfcpu page splitter.
func WithSplitter(s document.Splitter) Option {
	return func(c *clientConfig) {
		c.splitter = s
	}
}

// WithEmbedder replaces the configured embedding provider. The query cache,
// when enabled, still wraps it.
func WithEmbedder(e search.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithReranker replaces the configured rerank provider.
func WithReranker(r search.Reranker) Option {
	return func(c *clientConfig) {
		c.reranker = r
	}
}

// WithOCR replaces the configured OCR provider.
func WithOCR(o OCR) Option {
	return func(c *clientConfig) {
		c.ocr = o
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}

// WithSkipProviderValidation skips the check that provider settings are
// present. Intended for tests and for commands that never call a provider.
func WithSkipProviderValidation() Option {
	return func(c *clientConfig) {
		c.skipProviderValidation = true
	}
}
