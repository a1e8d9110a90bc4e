package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/cavepedia/cavepedia/domain/document"
)

// Status counts rows in each pipeline state.
type Status struct {
	Documents   int64 `json:"documents" yaml:"documents"`
	Unsplit     int64 `json:"unsplit" yaml:"unsplit"`
	Units       int64 `json:"units" yaml:"units"`
	Pending     int64 `json:"pending" yaml:"pending"`
	Claimed     int64 `json:"claimed" yaml:"claimed"`
	Extracted   int64 `json:"extracted" yaml:"extracted"`
	Failed      int64 `json:"failed" yaml:"failed"`
	Embedded    int64 `json:"embedded" yaml:"embedded"`
	OpenBatches int64 `json:"open_batches" yaml:"open_batches"`
}

// Maintenance holds the operator repairs that sit outside the polling loop.
type Maintenance struct {
	documents document.DocumentStore
	units     document.UnitStore
	batches   document.BatchStore
	logger    *slog.Logger
}

// NewMaintenance creates a new Maintenance service.
func NewMaintenance(
	documents document.DocumentStore,
	units document.UnitStore,
	batches document.BatchStore,
	logger *slog.Logger,
) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{
		documents: documents,
		units:     units,
		batches:   batches,
		logger:    logger,
	}
}

// Reset returns failed and/or claimed units to pending so the next cycle
// runs OCR on them again.
func (m *Maintenance) Reset(ctx context.Context, failed, claimed bool) (int64, error) {
	var contents []string
	if failed {
		contents = append(contents, document.ContentFailed)
	}
	if claimed {
		contents = append(contents, document.ContentClaimed)
	}
	if len(contents) == 0 {
		return 0, nil
	}

	n, err := m.units.Reset(ctx, contents)
	if err != nil {
		return 0, storeErr("reset units", err)
	}
	m.logger.InfoContext(ctx, "reset units", slog.Int64("units", n), slog.Any("states", contents))
	return n, nil
}

// FixPages shifts the page keys of one file from 0-based to 1-based
// numbering. It does nothing unless a page-0 unit exists, so running it
// twice is safe. Keys are renamed highest page first.
func (m *Maintenance) FixPages(ctx context.Context, key string) (int, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, errors.New("fix pages: empty key")
	}

	prefix := document.PagePrefix(key)
	units, err := m.units.Find(ctx, document.WithKeyPrefix(prefix))
	if err != nil {
		return 0, storeErr("find pages of "+key, err)
	}

	type page struct {
		key string
		n   int
	}
	pages := make([]page, 0, len(units))
	zeroBased := false
	for _, u := range units {
		// LIKE treats _ and % in the prefix as wildcards.
		if !strings.HasPrefix(u.Key(), prefix) {
			continue
		}
		n, ok := document.PageNumber(u.Key())
		if !ok || strings.Contains(u.Key()[len(prefix):], "/") {
			continue
		}
		if n == 0 {
			zeroBased = true
		}
		pages = append(pages, page{key: u.Key(), n: n})
	}
	if !zeroBased {
		m.logger.InfoContext(ctx, "pages already numbered from 1", slog.String("key", key), slog.Int("pages", len(pages)))
		return 0, nil
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].n > pages[j].n })
	renames := make([]document.Rename, len(pages))
	for i, p := range pages {
		renames[i] = document.Rename{From: p.key, To: document.PageKey(key, p.n+1)}
	}

	if err := m.units.Rekey(ctx, renames); err != nil {
		return 0, storeErr("renumber pages of "+key, err)
	}
	m.logger.InfoContext(ctx, "renumbered pages", slog.String("key", key), slog.Int("pages", len(renames)))
	return len(renames), nil
}

// Status counts documents, units per state and open batches.
func (m *Maintenance) Status(ctx context.Context) (Status, error) {
	var s Status
	var err error

	counts := []struct {
		dst   *int64
		count func() (int64, error)
	}{
		{&s.Documents, func() (int64, error) { return m.documents.Count(ctx) }},
		{&s.Unsplit, func() (int64, error) { return m.documents.Count(ctx, document.WithSplit(false)) }},
		{&s.Units, func() (int64, error) { return m.units.Count(ctx) }},
		{&s.Pending, func() (int64, error) { return m.units.Count(ctx, document.WithState(document.StatePending)) }},
		{&s.Claimed, func() (int64, error) { return m.units.Count(ctx, document.WithState(document.StateClaimed)) }},
		{&s.Extracted, func() (int64, error) { return m.units.Count(ctx, document.WithState(document.StateExtracted)) }},
		{&s.Failed, func() (int64, error) { return m.units.Count(ctx, document.WithState(document.StateFailed)) }},
		{&s.Embedded, func() (int64, error) { return m.units.Count(ctx, document.WithEmbedded(true)) }},
		{&s.OpenBatches, func() (int64, error) { return m.batches.Count(ctx, document.WithDone(false)) }},
	}
	for _, c := range counts {
		if *c.dst, err = c.count(); err != nil {
			return Status{}, storeErr("count", err)
		}
	}
	return s, nil
}
