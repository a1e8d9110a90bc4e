package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cavepedia/cavepedia/internal/config"
)

func pollCmd(envFile *string) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run the ingestion pipeline without the HTTP server",
		Long: `Run the ingestion pipeline: import, split, OCR and embed. By default cycles
repeat every PIPELINE_INTERVAL_SECONDS until interrupted. With --once a single
cycle runs and its report is printed as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoll(cmd, *envFile, once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")

	return cmd
}

func runPoll(cmd *cobra.Command, envFile string, once bool) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	// Polling is the whole point of this command.
	cfg = cfg.Apply(config.WithPipelineConfig(cfg.Pipeline().WithEnabled(true)))

	logger := setupLogger(cfg, os.Stderr)

	client, err := openClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		report, err := client.Pipeline.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("ingestion cycle: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if err := client.StartIngest(ctx); err != nil {
		return fmt.Errorf("start ingest: %w", err)
	}
	<-ctx.Done()
	logger.Info("stopping ingestion")
	return nil
}
