package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "15:04:05.000"

// newConsoleHandler renders records as human-readable lines:
//
//	15:04:05.000 INF server started port=8080
//
// slog encodes each record as JSON and zerolog's ConsoleWriter reformats it,
// so attribute handling stays identical to the JSON format.
func newConsoleHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}

	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: consoleTimeFormat,
		NoColor:    !colorEnabled(w),
	}

	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: consoleAttr,
	})
}

// consoleAttr maps slog's built-in keys onto the names ConsoleWriter expects.
func consoleAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.MessageKey:
		a.Key = zerolog.MessageFieldName
	case slog.LevelKey:
		a.Key = zerolog.LevelFieldName
		if lvl, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(zerologLevel(lvl))
		}
	case slog.TimeKey:
		a.Key = zerolog.TimestampFieldName
	}
	return a
}

func zerologLevel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return zerolog.LevelErrorValue
	case l >= slog.LevelWarn:
		return zerolog.LevelWarnValue
	case l >= slog.LevelInfo:
		return zerolog.LevelInfoValue
	default:
		return zerolog.LevelDebugValue
	}
}

// colorEnabled is true only for terminals, and never when NO_COLOR is set.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
