package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slogGormLogger sends GORM's output through slog. Statements are logged at
// Debug, statements slower than slowThreshold at Warn, and failures at Error.
// gorm.ErrRecordNotFound is a normal empty result and never logged as an error.
type slogGormLogger struct {
	slowThreshold time.Duration
}

// LogMode is a no-op; level filtering is handled by slog.
func (l slogGormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

// Info logs informational messages from GORM.
func (l slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	slog.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

// Warn logs warning messages from GORM.
func (l slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	slog.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

// Error logs error messages from GORM.
func (l slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	slog.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

const maxSQLLength = 200

// truncateSQL keeps the head and tail of long statements. Vector literals
// otherwise flood the log.
func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLength {
		return sql
	}
	half := (maxSQLLength - 3) / 2
	return sql[:half] + "..." + sql[len(sql)-half:]
}

// Trace is called by GORM after every statement.
func (l slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		slog.ErrorContext(ctx, "database query failed",
			"sql", truncateSQL(sql),
			"rows", rows,
			"duration", elapsed,
			"error", err,
		)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		sql, rows := fc()
		slog.WarnContext(ctx, "slow database query",
			"sql", truncateSQL(sql),
			"rows", rows,
			"duration", elapsed,
		)
	case slog.Default().Enabled(ctx, slog.LevelDebug):
		sql, rows := fc()
		slog.DebugContext(ctx, "database query",
			"sql", truncateSQL(sql),
			"rows", rows,
			"duration", elapsed,
		)
	}
}
