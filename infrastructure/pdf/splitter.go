// Package pdf splits uploaded PDFs into single-page documents.
package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Splitter implements document.Splitter with pdfcpu. Work happens in a
// scratch directory that is removed when Split returns.
type Splitter struct {
	tempDir string
	logger  *slog.Logger
}

// NewSplitter creates a Splitter writing scratch files under tempDir
// (the system default when empty).
func NewSplitter(tempDir string, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	api.DisableConfigDir()
	return &Splitter{tempDir: tempDir, logger: logger}
}

func relaxed() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Split returns one PDF per page of data, in page order. A document
// without pages yields an empty slice.
func (s *Splitter) Split(ctx context.Context, data []byte) ([][]byte, error) {
	dir, err := os.MkdirTemp(s.tempDir, "cavepedia-split-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	source := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(source, data, 0o600); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	// Optimizing rewrites the file with a clean cross-reference table,
	// which lets pdfcpu split scans with minor structural damage.
	prepared := filepath.Join(dir, "prepared.pdf")
	if err := api.OptimizeFile(source, prepared, relaxed()); err != nil {
		s.logger.Warn("pdf optimize failed, splitting original", "error", err)
		prepared = source
	}

	count, err := api.PageCountFile(prepared)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if count == 0 {
		return [][]byte{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := filepath.Join(dir, "pages")
	if err := os.Mkdir(out, 0o700); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := api.SplitFile(prepared, out, 1, relaxed()); err != nil {
		return nil, fmt.Errorf("split pages: %w", err)
	}

	base := trimExt(filepath.Base(prepared))
	pages := make([][]byte, count)
	for i := range pages {
		page, err := os.ReadFile(filepath.Join(out, fmt.Sprintf("%s_%d.pdf", base, i+1)))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i+1, err)
		}
		pages[i] = page
	}
	return pages, nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
