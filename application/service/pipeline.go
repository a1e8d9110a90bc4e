package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/repository"
	"github.com/cavepedia/cavepedia/domain/search"
	"github.com/cavepedia/cavepedia/internal/config"
	"github.com/cavepedia/cavepedia/internal/log"
)

// pageUploadParallelism bounds concurrent page uploads for one file.
const pageUploadParallelism = 8

// Stage names, as they appear in logs and cycle reports.
const (
	StageImport      = "import"
	StageSplit       = "split"
	StageSubmitOCR   = "ocr_submit"
	StageCompleteOCR = "ocr_complete"
	StageSyncOCR     = "ocr_sync"
	StageEmbed       = "embed"
)

// PipelineDeps are the collaborators a Pipeline drives. BatchOCR is needed in
// batch mode and TextExtractor in sync mode.
type PipelineDeps struct {
	Objects       document.ObjectStore
	Splitter      document.Splitter
	Documents     document.DocumentStore
	Units         document.UnitStore
	Batches       document.BatchStore
	BatchOCR      document.BatchOCR
	TextExtractor document.TextExtractor
	Embedder      search.Embedder
}

// CycleReport counts the work one cycle did.
type CycleReport struct {
	CorrelationID string        `json:"correlation_id"`
	Imported      int           `json:"imported"`
	Split         int           `json:"split"`
	Submitted     int           `json:"submitted"`
	Completed     int           `json:"completed"`
	Extracted     int           `json:"extracted"`
	Embedded      int           `json:"embedded"`
	Failed        []string      `json:"failed,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Pipeline moves uploaded files from the import bucket to embedded page
// units. Every stage selects its work from the database, so a cycle that
// stops halfway resumes on the next run.
type Pipeline struct {
	deps       PipelineDeps
	settings   config.PipelineConfig
	storage    config.StorageConfig
	dimensions int
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. dimensions is the expected vector width;
// zero skips the check.
func NewPipeline(
	settings config.PipelineConfig,
	storage config.StorageConfig,
	dimensions int,
	deps PipelineDeps,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deps:       deps,
		settings:   settings,
		storage:    storage,
		dimensions: dimensions,
		logger:     logger,
	}
}

// RunCycle runs every stage once, in order. A stage that fails on a remote
// service or the object store is logged and the cycle moves on. A metadata
// store failure ends the cycle and is returned.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleReport, error) {
	ctx, id := log.NewCorrelationID(ctx)
	report := CycleReport{CorrelationID: id}
	start := time.Now()

	type stage struct {
		name  string
		run   func(context.Context) (int, error)
		count *int
	}
	stages := []stage{
		{StageImport, p.Import, &report.Imported},
		{StageSplit, p.Split, &report.Split},
	}
	if p.settings.OCRMode() == config.OCRModeSync {
		stages = append(stages, stage{StageSyncOCR, p.SyncOCR, &report.Extracted})
	} else {
		stages = append(stages,
			stage{StageSubmitOCR, p.SubmitOCR, &report.Submitted},
			stage{StageCompleteOCR, p.CompleteOCR, &report.Completed},
		)
	}
	stages = append(stages, stage{StageEmbed, p.Embed, &report.Embedded})

	p.logger.InfoContext(ctx, "pipeline cycle started", slog.String("ocr_mode", string(p.settings.OCRMode())))

	for _, s := range stages {
		n, err := s.run(ctx)
		*s.count = n
		if err == nil {
			continue
		}
		report.Failed = append(report.Failed, s.name)
		if errors.Is(err, ErrMetadataStore) || ctx.Err() != nil {
			report.Duration = time.Since(start)
			p.logger.ErrorContext(ctx, "pipeline cycle aborted",
				slog.String("stage", s.name),
				slog.String("error", err.Error()),
			)
			return report, fmt.Errorf("%s stage: %w", s.name, err)
		}
		p.logger.WarnContext(ctx, "pipeline stage failed",
			slog.String("stage", s.name),
			slog.String("error", err.Error()),
		)
	}

	report.Duration = time.Since(start)
	p.logger.InfoContext(ctx, "pipeline cycle finished",
		slog.Int("imported", report.Imported),
		slog.Int("split", report.Split),
		slog.Int("submitted", report.Submitted),
		slog.Int("completed", report.Completed),
		slog.Int("extracted", report.Extracted),
		slog.Int("embedded", report.Embedded),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// Import moves every object out of the import bucket into the files bucket
// and records it. The import copy is deleted only after the record exists,
// so a crash in between just repeats the work.
func (p *Pipeline) Import(ctx context.Context) (int, error) {
	src, dst := p.storage.ImportBucket(), p.storage.FilesBucket()

	keys, err := p.deps.Objects.List(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", src, err)
	}

	imported := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		if err := p.deps.Objects.Copy(ctx, src, key, dst, key); err != nil {
			p.logger.WarnContext(ctx, "import copy failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}

		created, err := p.deps.Documents.Create(ctx, document.NewDocument(dst, key))
		if err != nil {
			return imported, storeErr("record "+key, err)
		}
		if !created {
			p.logger.DebugContext(ctx, "file already imported", slog.String("key", key))
		}

		if err := p.deps.Objects.Delete(ctx, src, key); err != nil {
			p.logger.WarnContext(ctx, "import cleanup failed", slog.String("key", key), slog.String("error", err.Error()))
			continue
		}

		if created {
			imported++
			p.logger.InfoContext(ctx, "imported file", slog.String("key", key))
		}
	}
	return imported, nil
}

// Split breaks every unsplit document into pages. Files are processed in
// parallel; a file that cannot be read or parsed is skipped until the next
// cycle.
func (p *Pipeline) Split(ctx context.Context) (int, error) {
	docs, err := p.deps.Documents.Find(ctx, document.WithSplit(false), repository.WithOrderAsc("id"))
	if err != nil {
		return 0, storeErr("find unsplit documents", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	var split atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.settings.SplitParallelism(), 1))

	for _, doc := range docs {
		g.Go(func() error {
			pages, err := p.splitDocument(gctx, doc)
			if errors.Is(err, ErrMetadataStore) {
				return err
			}
			if err != nil {
				p.logger.WarnContext(gctx, "split failed", slog.String("key", doc.Key()), slog.String("error", err.Error()))
				return nil
			}
			split.Add(1)
			p.logger.InfoContext(gctx, "split file", slog.String("key", doc.Key()), slog.Int("pages", pages))
			return nil
		})
	}

	err = g.Wait()
	return int(split.Load()), err
}

func (p *Pipeline) splitDocument(ctx context.Context, doc document.Document) (int, error) {
	data, err := p.deps.Objects.Get(ctx, doc.Bucket(), doc.Key())
	if err != nil {
		return 0, err
	}

	pages, err := p.deps.Splitter.Split(ctx, data)
	if err != nil {
		return 0, err
	}

	bucket := p.storage.PagesBucket()
	units := make([]document.Unit, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageUploadParallelism)
	for i, page := range pages {
		key := document.PageKey(doc.Key(), i+1)
		units[i] = document.NewUnit(bucket, key, doc.Key())
		g.Go(func() error {
			return p.deps.Objects.Put(gctx, bucket, key, page)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := p.deps.Documents.CompleteSplit(ctx, doc, units); err != nil {
		return 0, storeErr("complete split of "+doc.Key(), err)
	}
	return len(pages), nil
}

// SubmitOCR claims up to one batch of pending units and sends the ones it
// claimed to the batch OCR provider. Claims are never undone here: when the
// submission fails the units stay claimed until an operator resets them.
func (p *Pipeline) SubmitOCR(ctx context.Context) (int, error) {
	pending, err := p.pending(ctx)
	if err != nil || len(pending) == 0 {
		return 0, err
	}

	// Sign first so a storage failure leaves every unit pending.
	ids := make([]int64, len(pending))
	urls := make(map[int64]string, len(pending))
	for i, u := range pending {
		url, err := p.deps.Objects.SignedURL(ctx, u.Bucket(), u.Key(), p.storage.SignedURLTTL())
		if err != nil {
			return 0, fmt.Errorf("sign %s: %w", u.Key(), err)
		}
		ids[i] = u.ID()
		urls[u.ID()] = url
	}

	claimed, err := p.deps.Units.Claim(ctx, ids)
	if err != nil {
		return 0, storeErr("claim units", err)
	}
	if len(claimed) != len(ids) {
		p.logger.WarnContext(ctx, "some units were already claimed",
			slog.Int("selected", len(ids)),
			slog.Int("claimed", len(claimed)),
		)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	requests := make([]document.OCRRequest, len(claimed))
	for i, id := range claimed {
		requests[i] = document.NewOCRRequest(document.CorrelationID(id), urls[id])
	}

	batchID, err := p.deps.BatchOCR.SubmitBatch(ctx, requests)
	if err != nil {
		p.logger.ErrorContext(ctx, "ocr batch not submitted, units stay claimed",
			slog.Int("units", len(claimed)),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("submit ocr batch: %w", err)
	}

	if _, err := p.deps.Batches.Create(ctx, document.NewBatch(document.PlatformClaude, batchID, document.BatchTypeOCR)); err != nil {
		// The provider has the work but nothing will collect it.
		return 0, storeErr("record batch "+batchID, err)
	}

	p.logger.InfoContext(ctx, "submitted ocr batch", slog.String("batch_id", batchID), slog.Int("units", len(requests)))
	return len(requests), nil
}

// CompleteOCR polls every open batch once and applies the results of those
// that have ended. It never waits for a batch to finish.
func (p *Pipeline) CompleteOCR(ctx context.Context) (int, error) {
	open, err := p.deps.Batches.Find(ctx, document.WithDone(false), repository.WithOrderAsc("id"))
	if err != nil {
		return 0, storeErr("find open batches", err)
	}

	completed := 0
	var failures []error
	for _, b := range open {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		logger := p.logger.With(slog.String("batch_id", b.BatchID()))

		status, err := p.deps.BatchOCR.PollBatch(ctx, b.BatchID())
		if err != nil {
			failures = append(failures, err)
			logger.WarnContext(ctx, "poll failed", slog.String("error", err.Error()))
			continue
		}
		if status != document.BatchEnded {
			logger.DebugContext(ctx, "batch still running")
			continue
		}

		results, err := p.deps.BatchOCR.FetchResults(ctx, b.BatchID())
		if err != nil {
			failures = append(failures, err)
			logger.WarnContext(ctx, "fetch results failed", slog.String("error", err.Error()))
			continue
		}

		extractions := p.extractions(ctx, results)
		if err := p.deps.Batches.Complete(ctx, b, extractions); err != nil {
			return completed, storeErr("complete batch "+b.BatchID(), err)
		}

		failed := 0
		for _, e := range extractions {
			if e.Failed() {
				failed++
			}
		}
		completed++
		logger.InfoContext(ctx, "applied ocr batch",
			slog.Int("results", len(extractions)),
			slog.Int("failed", failed),
		)
	}
	return completed, errors.Join(failures...)
}

func (p *Pipeline) extractions(ctx context.Context, results []document.OCRResult) []document.Extraction {
	out := make([]document.Extraction, 0, len(results))
	for _, r := range results {
		id, err := document.ParseCorrelationID(r.CorrelationID())
		if err != nil {
			p.logger.WarnContext(ctx, "skipping batch result", slog.String("error", err.Error()))
			continue
		}
		if r.Err() != nil {
			p.logger.DebugContext(ctx, "page extraction failed",
				slog.Int64("unit_id", id),
				slog.String("error", r.Err().Error()),
			)
			out = append(out, document.FailedExtraction(id))
			continue
		}
		out = append(out, document.NewExtraction(id, r.Text()))
	}
	return out
}

// SyncOCR extracts pending units one at a time and waits for each. A unit
// the provider rejects is marked failed. When the provider or the object
// store is unavailable the stage stops and that unit stays claimed.
func (p *Pipeline) SyncOCR(ctx context.Context) (int, error) {
	pending, err := p.pending(ctx)
	if err != nil || len(pending) == 0 {
		return 0, err
	}

	extracted := 0
	for _, u := range pending {
		claimed, err := p.deps.Units.Claim(ctx, []int64{u.ID()})
		if err != nil {
			return extracted, storeErr("claim unit", err)
		}
		if len(claimed) == 0 {
			continue
		}

		text, err := p.deps.TextExtractor.ExtractText(ctx, u.Bucket(), u.Key())
		var extraction document.Extraction
		switch {
		case err == nil:
			extraction = document.NewExtraction(u.ID(), text)
		case errors.Is(err, document.ErrOCRUnavailable), errors.Is(err, document.ErrStorage), ctx.Err() != nil:
			p.logger.ErrorContext(ctx, "extraction interrupted, unit stays claimed",
				slog.String("key", u.Key()),
				slog.String("error", err.Error()),
			)
			return extracted, fmt.Errorf("extract %s: %w", u.Key(), err)
		default:
			p.logger.WarnContext(ctx, "page extraction failed", slog.String("key", u.Key()), slog.String("error", err.Error()))
			extraction = document.FailedExtraction(u.ID())
		}

		if err := p.deps.Units.SaveExtraction(ctx, extraction); err != nil {
			return extracted, storeErr("save extraction", err)
		}
		if !extraction.Failed() {
			extracted++
		}
	}
	return extracted, nil
}

// Embed computes document vectors for extracted units that lack one, walking
// them in id order. Each vector is committed on its own, so an interrupted
// stage keeps what it finished. A unit the provider rejects is skipped and
// stays unembedded; only an unavailable provider ends the stage.
func (p *Pipeline) Embed(ctx context.Context) (int, error) {
	embedded := 0
	var after int64
	for {
		chunk, err := p.deps.Units.Find(ctx,
			document.WithState(document.StateExtracted),
			document.WithEmbedded(false),
			document.WithIDAfter(after),
			repository.WithOrderAsc("id"),
			repository.WithLimit(p.settings.EmbedChunkSize()),
		)
		if err != nil {
			return embedded, storeErr("find unembedded units", err)
		}
		if len(chunk) == 0 {
			return embedded, nil
		}

		for _, u := range chunk {
			after = u.ID()

			vector, err := p.deps.Embedder.Embed(ctx, u.Text(), search.PurposeDocument)
			if errors.Is(err, search.ErrEmbeddingUnavailable) || ctx.Err() != nil {
				return embedded, fmt.Errorf("embed %s: %w", u.Key(), err)
			}
			if err != nil {
				p.logger.WarnContext(ctx, "skipping unit",
					slog.String("key", u.Key()),
					slog.Bool("rejected", errors.Is(err, search.ErrEmbeddingRejected)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if p.dimensions > 0 && len(vector) != p.dimensions {
				p.logger.WarnContext(ctx, "skipping unit with wrong embedding width",
					slog.String("key", u.Key()),
					slog.Int("got", len(vector)),
					slog.Int("want", p.dimensions),
				)
				continue
			}

			if err := p.deps.Units.SaveEmbedding(ctx, u.ID(), vector); err != nil {
				return embedded, storeErr("save embedding", err)
			}
			embedded++
		}
	}
}

func (p *Pipeline) pending(ctx context.Context) ([]document.Unit, error) {
	units, err := p.deps.Units.Find(ctx,
		document.WithState(document.StatePending),
		repository.WithOrderAsc("id"),
		repository.WithLimit(p.settings.OCRBatchSize()),
	)
	if err != nil {
		return nil, storeErr("find pending units", err)
	}
	return units, nil
}
