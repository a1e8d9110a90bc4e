// Package cavepedia provides a library for ingesting and searching a caving
// document library.
//
// Uploaded PDFs are split into pages, each page is read by an OCR model,
// embedded, and stored with the role that owns it. Search is role-scoped
// semantic retrieval with reranking.
//
// Basic usage:
//
//	cfg, err := config.LoadConfig(".env")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := cavepedia.New(cavepedia.WithConfig(cfg))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Run one ingestion cycle
//	report, err := client.Pipeline.RunCycle(ctx)
//
//	// Search as a caller holding the "public" role
//	resp, err := client.Search.Search(ctx, search.NewRequest("rope rub on the second pitch", []string{"public"}))
package cavepedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cavepedia/cavepedia/application/service"
	"github.com/cavepedia/cavepedia/infrastructure/cache"
	"github.com/cavepedia/cavepedia/infrastructure/pdf"
	"github.com/cavepedia/cavepedia/infrastructure/persistence"
	"github.com/cavepedia/cavepedia/infrastructure/provider"
	"github.com/cavepedia/cavepedia/infrastructure/storage"
	"github.com/cavepedia/cavepedia/internal/config"
	"github.com/cavepedia/cavepedia/internal/database"
	"github.com/cavepedia/cavepedia/internal/log"
)

// Client is the main entry point for the cavepedia library.
//
// Access services via struct fields:
//
//	client.Pipeline.RunCycle(ctx)
//	client.Search.Search(ctx, request)
//	client.Maintenance.Status(ctx)
type Client struct {
	Pipeline    *service.Pipeline
	Search      *service.Search
	Maintenance *service.Maintenance

	db       database.Database
	periodic *service.PeriodicIngest
	closers  []io.Closer
	config   config.AppConfig
	logger   *slog.Logger
	ingest   bool
	closed   atomic.Bool
	mu       sync.Mutex
}

// New creates a new Client with the given options. Providers that were not
// injected are built from configuration, which must then be complete.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = log.Default()
	}
	app := cfg.app

	if !cfg.skipProviderValidation {
		if err := app.Validate(missingProviders(cfg)...); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if _, err := config.PrepareDataDir(app.DataDir()); err != nil {
		return nil, err
	}

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, app.DBURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every exit below must release what was opened so far.
	closers := cfg.closers
	fail := func(err error) (*Client, error) {
		return nil, errors.Join(err, closeAll(closers, logger), db.Close())
	}

	dimensions := app.Embedding().Dimensions()
	if err := persistence.AutoMigrate(db, dimensions); err != nil {
		return fail(fmt.Errorf("auto migrate: %w", err))
	}
	if err := persistence.ValidateSchema(db); err != nil {
		return fail(fmt.Errorf("validate schema: %w", err))
	}

	objects := cfg.objects
	if objects == nil {
		gcs, err := storage.NewGCS(ctx, storage.GCSConfig{
			EmulatorHost:    app.Storage().EmulatorHost(),
			CredentialsFile: app.Storage().CredentialsFile(),
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("object store: %w", err))
		}
		objects = gcs
		closers = append(closers, gcs)
	}

	splitter := cfg.splitter
	if splitter == nil {
		splitter = pdf.NewSplitter("", logger)
	}

	embedder := cfg.embedder
	if embedder == nil {
		embedder = provider.NewOpenAIEmbedder(embeddingConfig(app.Embedding()))
	}

	// Only queries go through the cache; the pipeline embeds each page once.
	queryEmbedder := embedder
	if app.Cache().Enabled() {
		redis, err := cache.NewRedis(ctx, app.Cache().RedisURL())
		if err != nil {
			return fail(fmt.Errorf("query cache: %w", err))
		}
		closers = append(closers, redis)
		namespace := fmt.Sprintf("%s:%d", app.Embedding().Model(), dimensions)
		queryEmbedder = cache.NewEmbeddingCache(embedder, redis, app.Cache().TTL(), namespace, logger)
	}

	reranker := cfg.reranker
	if reranker == nil {
		reranker = provider.NewCohereReranker(rerankConfig(app.Rerank()))
	}

	ocr := cfg.ocr
	if ocr == nil {
		ocr = provider.NewAnthropicOCR(ocrConfig(app.OCR(), app.Storage()), objects)
	}

	documents := persistence.NewDocumentStore(db)
	units := persistence.NewUnitStore(db)
	batches := persistence.NewBatchStore(db)

	pipeline := service.NewPipeline(app.Pipeline(), app.Storage(), dimensions, service.PipelineDeps{
		Objects:       objects,
		Splitter:      splitter,
		Documents:     documents,
		Units:         units,
		Batches:       batches,
		BatchOCR:      ocr,
		TextExtractor: ocr,
		Embedder:      embedder,
	}, logger)

	client := &Client{
		Pipeline:    pipeline,
		Maintenance: service.NewMaintenance(documents, units, batches, logger),
		db:          db,
		periodic:    service.NewPeriodicIngest(app.Pipeline(), pipeline, logger),
		closers:     closers,
		config:      app,
		logger:      logger,
	}
	client.Search = service.NewSearch(units, queryEmbedder, reranker, app.Search(), &client.closed, logger)

	return client, nil
}

// missingProviders lists the settings groups New must validate, skipping
// providers the caller injected.
func missingProviders(cfg *clientConfig) []config.Need {
	var needs []config.Need
	if cfg.embedder == nil {
		needs = append(needs, config.NeedEmbedding)
	}
	if cfg.reranker == nil {
		needs = append(needs, config.NeedRerank)
	}
	if cfg.ocr == nil {
		needs = append(needs, config.NeedOCR)
	}
	return append(needs, config.NeedStorage)
}

func embeddingConfig(e config.Endpoint) provider.EmbeddingConfig {
	return provider.EmbeddingConfig{
		APIKey:        e.APIKey(),
		BaseURL:       e.BaseURL(),
		Model:         e.Model(),
		Dimensions:    e.Dimensions(),
		Timeout:       e.Timeout(),
		MaxAttempts:   e.MaxRetries(),
		InitialDelay:  e.InitialDelay(),
		BackoffFactor: e.BackoffFactor(),
	}
}

func rerankConfig(e config.Endpoint) provider.RerankConfig {
	return provider.RerankConfig{
		APIKey:  e.APIKey(),
		BaseURL: e.BaseURL(),
		Model:   e.Model(),
		Timeout: e.Timeout(),
	}
}

func ocrConfig(e config.Endpoint, s config.StorageConfig) provider.AnthropicConfig {
	return provider.AnthropicConfig{
		APIKey:        e.APIKey(),
		BaseURL:       e.BaseURL(),
		Model:         e.Model(),
		MaxTokens:     e.MaxTokens(),
		Timeout:       e.Timeout(),
		MaxAttempts:   e.MaxRetries(),
		InitialDelay:  e.InitialDelay(),
		BackoffFactor: e.BackoffFactor(),
		URLTTL:        s.SignedURLTTL(),
	}
}

// StartIngest runs the pipeline periodically in the background until Close.
// It does nothing when the pipeline is disabled.
func (c *Client) StartIngest(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ingest {
		return ErrIngestRunning
	}
	c.ingest = true
	c.periodic.Start(ctx)
	return nil
}

// Close stops background ingestion and releases all resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.periodic.Stop()

	err := closeAll(c.closers, c.logger)
	if dbErr := c.db.Close(); dbErr != nil {
		err = errors.Join(err, fmt.Errorf("close database: %w", dbErr))
	}

	c.logger.Info("cavepedia client closed")
	return err
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.AppConfig {
	return c.config
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

func closeAll(closers []io.Closer, logger *slog.Logger) error {
	var errs []error
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			logger.Error("failed to close resource", slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
