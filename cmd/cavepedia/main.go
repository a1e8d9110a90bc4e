// Package main is the entry point for the cavepedia CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cavepedia/cavepedia/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "cavepedia",
		Short: "Cavepedia document ingestion and search",
		Long: `Cavepedia ingests caving PDFs (trip reports, surveys, newsletters, accident reports),
extracts their text page by page, and serves role-scoped semantic search to an agent over MCP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	cmd.AddCommand(serveCmd(&envFile))
	cmd.AddCommand(pollCmd(&envFile))
	cmd.AddCommand(stdioCmd(&envFile))
	cmd.AddCommand(statusCmd(&envFile))
	cmd.AddCommand(resetCmd(&envFile))
	cmd.AddCommand(fixPagesCmd(&envFile))
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
