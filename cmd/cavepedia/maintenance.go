package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cavepedia/cavepedia/application/service"
)

// Output formats for status.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var errUnknownOutput = errors.New("unknown output format")

func statusCmd(envFile *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline counts",
		Long:  `Count documents, units in each state, embedded units and open OCR batches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMaintenance(*envFile, func(ctx context.Context, m *service.Maintenance) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return writeStatus(cmd.OutOrStdout(), status, output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or yaml")

	return cmd
}

func resetCmd(envFile *string) *cobra.Command {
	var failed, claimed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return failed or stuck units to the OCR queue",
		Long: `Reset units whose OCR failed (--errors) or whose claim was never resolved
(--wip) so the next cycle extracts them again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !failed && !claimed {
				return errors.New("nothing to reset: pass --errors, --wip or both")
			}
			return withMaintenance(*envFile, func(ctx context.Context, m *service.Maintenance) error {
				n, err := m.Reset(ctx, failed, claimed)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset %d units\n", n)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&failed, "errors", false, "Reset units marked ERROR")
	cmd.Flags().BoolVar(&claimed, "wip", false, "Reset units marked WIP")

	return cmd
}

func fixPagesCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-pages KEY",
		Short: "Renumber a document's pages from 0-based to 1-based",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMaintenance(*envFile, func(ctx context.Context, m *service.Maintenance) error {
				n, err := m.FixPages(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "renamed %d pages of %s\n", n, args[0])
				return err
			})
		},
	}
}

func withMaintenance(envFile string, fn func(ctx context.Context, m *service.Maintenance) error) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, os.Stderr)

	m, done, err := openMaintenance(cfg, logger)
	if err != nil {
		return err
	}
	defer done()

	if err := fn(context.Background(), m); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		return err
	}
	return nil
}

func writeStatus(w io.Writer, s service.Status, output string) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(s)
	case outputTable, "":
		_, err := fmt.Fprintln(w, statusTable(s))
		return err
	default:
		return fmt.Errorf("%w: %q", errUnknownOutput, output)
	}
}

func statusTable(s service.Status) string {
	rows := [][]string{
		{"documents", count(s.Documents)},
		{"documents not split", count(s.Unsplit)},
		{"units", count(s.Units)},
		{"awaiting OCR", count(s.Pending)},
		{"OCR in progress (WIP)", count(s.Claimed)},
		{"extracted", count(s.Extracted)},
		{"OCR failed (ERROR)", count(s.Failed)},
		{"embedded", count(s.Embedded)},
		{"open batches", count(s.OpenBatches)},
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STATE", "COUNT").
		Rows(rows...).
		StyleFunc(func(_, col int) lipgloss.Style {
			if col == 1 {
				return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

func count(n int64) string {
	return strconv.FormatInt(n, 10)
}
