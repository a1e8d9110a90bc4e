package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cavepedia/cavepedia/internal/config"
)

// Cycle is one pass over every pipeline stage.
type Cycle interface {
	RunCycle(ctx context.Context) (CycleReport, error)
}

// PeriodicIngest runs the ingestion pipeline on a timer. Cycles never
// overlap: the next tick is only read after the previous cycle returns.
type PeriodicIngest struct {
	cycle    Cycle
	logger   *slog.Logger
	interval time.Duration
	enabled  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPeriodicIngest creates a new PeriodicIngest from config and the cycle it drives.
func NewPeriodicIngest(cfg config.PipelineConfig, cycle Cycle, logger *slog.Logger) *PeriodicIngest {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicIngest{
		cycle:    cycle,
		logger:   logger,
		interval: cfg.Interval(),
		enabled:  cfg.Enabled(),
	}
}

// Start begins periodic ingestion in a background goroutine.
// If disabled, this is a no-op.
func (p *PeriodicIngest) Start(ctx context.Context) {
	if !p.enabled {
		p.logger.Info("periodic ingestion disabled")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Go(func() {
		p.run(ctx)
	})

	p.logger.Info("periodic ingestion started", slog.Duration("interval", p.interval))
}

// Stop cancels the background goroutine and waits for the running cycle to return.
func (p *PeriodicIngest) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.logger.Info("periodic ingestion stopped")
}

func (p *PeriodicIngest) run(ctx context.Context) {
	// Ingest immediately on startup
	p.ingest(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ingest(ctx)
		}
	}
}

func (p *PeriodicIngest) ingest(ctx context.Context) {
	if _, err := p.cycle.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("ingestion cycle failed, retrying next interval",
			slog.String("error", err.Error()),
			slog.Duration("interval", p.interval),
		)
	}
}
