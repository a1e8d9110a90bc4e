package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestNew_JSONCarriesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogFormatJSON, "INFO").With("stage", "embed")

	ctx := WithRequestID(WithCorrelationID(context.Background(), "cycle-7"), "req-3")
	logger.InfoContext(ctx, "embedded units", "count", 12)
	logger.Info("no context")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "embedded units", lines[0]["msg"])
	assert.Equal(t, "embed", lines[0]["stage"])
	assert.Equal(t, "cycle-7", lines[0]["correlation_id"])
	assert.Equal(t, "req-3", lines[0]["request_id"])
	assert.NotContains(t, lines[1], "correlation_id")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestContextIDs_NotSet(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
	assert.Empty(t, RequestID(context.Background()))
}

func TestConfigure(t *testing.T) {
	previous, previousSlog := Default(), slog.Default()
	t.Cleanup(func() {
		defaultLogger.Store(previous)
		slog.SetDefault(previousSlog)
	})

	var buf bytes.Buffer
	cfg := config.NewAppConfigWithOptions(
		config.WithLogFormat(config.LogFormatJSON),
		config.WithLogLevel("WARN"),
	)
	logger := Configure(cfg, &buf)

	assert.Same(t, logger, Default())
	slog.Info("filtered")
	slog.Warn("kept")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}
