package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cavepedia/cavepedia/internal/config"
	"github.com/cavepedia/cavepedia/internal/mcp"
)

func stdioCmd(envFile *string) *cobra.Command {
	var (
		roles       string
		sourcesOnly bool
	)

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio for local agents.

A stdio client sends no identity headers, so the caller's roles come from
--roles. Without roles every search comes back empty.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStdio(*envFile, config.ParseList(roles), sourcesOnly)
		},
	}

	cmd.Flags().StringVar(&roles, "roles", "", "Comma-separated roles the local caller holds")
	cmd.Flags().BoolVar(&sourcesOnly, "sources-only", false, "Return result keys without page text")

	return cmd
}

func runStdio(envFile string, roles []string, sourcesOnly bool) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	// Stdout carries the protocol.
	logger := setupLogger(cfg, os.Stderr)

	client, err := openClient(cfg, logger)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	logger.Info("starting MCP server on stdio", slog.Any("roles", roles))
	srv := mcp.NewServer(client.Search, version, mcp.DefaultToolTimeout, logger)
	return srv.ServeStdio(roles, sourcesOnly)
}
