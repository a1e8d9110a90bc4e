package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/internal/config"
)

type fakeCycle struct {
	mu      sync.Mutex
	runs    int
	err     error
	running bool
	overlap bool
}

func (f *fakeCycle) RunCycle(_ context.Context) (CycleReport, error) {
	f.mu.Lock()
	if f.running {
		f.overlap = true
	}
	f.running = true
	f.runs++
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return CycleReport{}, f.err
}

func (f *fakeCycle) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func TestPeriodicIngest_Enabled(t *testing.T) {
	cycle := &fakeCycle{}
	cfg := config.NewPipelineConfig().
		WithEnabled(true).
		WithIntervalSeconds(0.01) // 10ms

	pi := NewPeriodicIngest(cfg, cycle, quietLogger())
	pi.Start(context.Background())

	require.Eventually(t, func() bool {
		return cycle.count() >= 3
	}, time.Second, 5*time.Millisecond)

	pi.Stop()

	cycle.mu.Lock()
	defer cycle.mu.Unlock()
	assert.False(t, cycle.overlap)
}

func TestPeriodicIngest_RunsImmediately(t *testing.T) {
	cycle := &fakeCycle{}
	cfg := config.NewPipelineConfig().WithEnabled(true).WithIntervalSeconds(3600)

	pi := NewPeriodicIngest(cfg, cycle, quietLogger())
	pi.Start(context.Background())

	require.Eventually(t, func() bool {
		return cycle.count() == 1
	}, time.Second, 5*time.Millisecond)

	pi.Stop()
}

func TestPeriodicIngest_Disabled(t *testing.T) {
	cycle := &fakeCycle{}
	cfg := config.NewPipelineConfig().WithEnabled(false)

	pi := NewPeriodicIngest(cfg, cycle, quietLogger())
	pi.Start(context.Background())

	time.Sleep(50 * time.Millisecond)

	pi.Stop()

	assert.Zero(t, cycle.count())
}

func TestPeriodicIngest_KeepsRunningAfterFailedCycle(t *testing.T) {
	cycle := &fakeCycle{err: errors.New("database unreachable")}
	cfg := config.NewPipelineConfig().WithEnabled(true).WithIntervalSeconds(0.01)

	pi := NewPeriodicIngest(cfg, cycle, quietLogger())
	pi.Start(context.Background())

	require.Eventually(t, func() bool {
		return cycle.count() >= 2
	}, time.Second, 5*time.Millisecond)

	pi.Stop()
}

func TestPeriodicIngest_StopWithoutStart(t *testing.T) {
	pi := NewPeriodicIngest(config.NewPipelineConfig(), &fakeCycle{}, quietLogger())
	pi.Stop()
}
