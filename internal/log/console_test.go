package log

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cavepedia/cavepedia/internal/config"
)

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogFormatPretty, "INFO")

	logger.Info("server started", "port", 8080)

	line := strings.TrimSpace(buf.String())
	assert.Regexp(t, regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} `), line)
	assert.Contains(t, line, "INF")
	assert.Contains(t, line, "server started")
	assert.Contains(t, line, "port=8080")
	assert.NotContains(t, line, "\x1b[", "buffers get no colour codes")
}

func TestConsoleHandler_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogFormatPretty, "DEBUG")

	logger.Debug("d")
	logger.Warn("w")
	logger.Error("e")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "DBG")
	assert.Contains(t, lines[1], "WRN")
	assert.Contains(t, lines[2], "ERR")
}

func TestConsoleHandler_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogFormatPretty, "WARN")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestConsoleHandler_WithAttrsAndContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LogFormatPretty, "INFO").With("stage", "split")

	ctx := WithCorrelationID(context.Background(), "cycle-1")
	logger.InfoContext(ctx, "split document", "pages", 12)

	out := buf.String()
	assert.Contains(t, out, "stage=split")
	assert.Contains(t, out, "correlation_id=cycle-1")
	assert.Contains(t, out, "pages=12")
}

func TestConsoleAttr_GroupedKeysUntouched(t *testing.T) {
	a := consoleAttr([]string{"request"}, slog.String(slog.MessageKey, "x"))
	assert.Equal(t, slog.MessageKey, a.Key)
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, "debug", zerologLevel(slog.LevelDebug))
	assert.Equal(t, "info", zerologLevel(slog.LevelInfo))
	assert.Equal(t, "warn", zerologLevel(slog.LevelWarn))
	assert.Equal(t, "error", zerologLevel(slog.LevelError+4))
}

func TestNewCorrelationID(t *testing.T) {
	ctx, id := NewCorrelationID(context.Background())
	assert.Len(t, id, 36)
	assert.Equal(t, id, CorrelationID(ctx))

	_, other := NewCorrelationID(context.Background())
	assert.NotEqual(t, id, other)
}
