package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cavepedia/cavepedia/infrastructure/api"
	"github.com/cavepedia/cavepedia/internal/config"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(envFile *string) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the ingestion loop",
		Long: `Start the HTTP server with /health and the MCP endpoint at /mcp. When
PIPELINE_ENABLED is true the ingestion pipeline runs in the same process.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST, PORT                   Listen address (default: 0.0.0.0:8080)
  DATA_DIR                     Data directory (default: ~/.cavepedia)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/cavepedia.db)
  LOG_LEVEL                    DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   pretty, json (default: pretty)
  CORS_ALLOWED_ORIGINS         Comma-separated browser origins

  EMBEDDING_ENDPOINT_*         BASE_URL, MODEL, API_KEY, TIMEOUT, MAX_RETRIES,
                               INITIAL_DELAY, BACKOFF_FACTOR, DIMENSIONS
  RERANK_ENDPOINT_*            BASE_URL, MODEL, API_KEY, TIMEOUT
  OCR_ENDPOINT_*               BASE_URL, MODEL, API_KEY, TIMEOUT, MAX_RETRIES,
                               INITIAL_DELAY, BACKOFF_FACTOR, MAX_TOKENS
  STORAGE_*                    IMPORT_BUCKET, FILES_BUCKET, PAGES_BUCKET,
                               EMULATOR_HOST, CREDENTIALS_FILE, SIGNED_URL_TTL
  PIPELINE_*                   ENABLED, INTERVAL_SECONDS, OCR_BATCH_SIZE, OCR_MODE,
                               SPLIT_PARALLELISM, EMBED_CHUNK_SIZE
  SEARCH_*                     TOP_N, MAX_CONTENT_LENGTH, MIN_CONTENT_LENGTH,
                               BOOST_FACTOR, CANDIDATE_MULTIPLIER
  REDIS_URL, QUERY_CACHE_TTL   Optional query-embedding cache`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	logger := setupLogger(cfg, os.Stdout)

	client, err := openClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.StartIngest(ctx); err != nil {
		return fmt.Errorf("start ingest: %w", err)
	}

	apiServer := api.NewAPIServer(client.Search, logger,
		api.WithVersion(version),
		api.WithCORSOrigins(cfg.CORSAllowedOrigins()),
	)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := apiServer.ListenAndServe(cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
