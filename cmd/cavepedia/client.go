package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cavepedia/cavepedia"
	"github.com/cavepedia/cavepedia/application/service"
	"github.com/cavepedia/cavepedia/infrastructure/persistence"
	"github.com/cavepedia/cavepedia/internal/config"
	"github.com/cavepedia/cavepedia/internal/database"
	"github.com/cavepedia/cavepedia/internal/log"
)

// openClient builds a fully wired client. Missing provider settings are a
// fatal configuration error.
func openClient(cfg config.AppConfig, logger *slog.Logger) (*cavepedia.Client, error) {
	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	logger.LogAttrs(context.Background(), slog.LevelInfo, "starting cavepedia", attrs...)

	client, err := cavepedia.New(
		cavepedia.WithConfig(cfg),
		cavepedia.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create cavepedia client: %w", err)
	}
	return client, nil
}

func closeClient(client *cavepedia.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close cavepedia client", slog.Any("error", err))
	}
}

// setupLogger configures the default logger from cfg, writing to w.
func setupLogger(cfg config.AppConfig, w io.Writer) *slog.Logger {
	return log.Configure(cfg, w)
}

// openMaintenance opens only the metadata store. Operator commands never
// call a provider or the object store, so they run without those settings.
func openMaintenance(cfg config.AppConfig, logger *slog.Logger) (*service.Maintenance, func(), error) {
	if _, err := config.PrepareDataDir(cfg.DataDir()); err != nil {
		return nil, nil, err
	}

	db, err := database.NewDatabase(context.Background(), cfg.DBURL())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := persistence.AutoMigrate(db, cfg.Embedding().Dimensions()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}

	m := service.NewMaintenance(
		persistence.NewDocumentStore(db),
		persistence.NewUnitStore(db),
		persistence.NewBatchStore(db),
		logger,
	)
	done := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}
	return m, done, nil
}
