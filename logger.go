package korpus

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with korpus-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// LogAdd logs a batch ingestion.
func (l *Logger) LogAdd(ctx context.Context, collection string, accepted, duplicates, failed int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "add failed",
			"collection", collection,
			"accepted", accepted,
			"failed", failed,
			"error", err,
		)
	case failed > 0:
		l.WarnContext(ctx, "add completed with failures",
			"collection", collection,
			"accepted", accepted,
			"duplicates", duplicates,
			"failed", failed,
		)
	default:
		l.DebugContext(ctx, "add completed",
			"collection", collection,
			"accepted", accepted,
			"duplicates", duplicates,
		)
	}
}

// LogQuery logs a query.
func (l *Logger) LogQuery(ctx context.Context, collection string, k, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"collection", collection,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"collection", collection,
			"k", k,
			"results", results,
		)
	}
}

// LogDelete logs a delete.
func (l *Logger) LogDelete(ctx context.Context, collection string, requested, deleted int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"collection", collection,
			"requested", requested,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"collection", collection,
			"requested", requested,
			"deleted", deleted,
		)
	}
}

// LogCompaction logs a compaction run.
func (l *Logger) LogCompaction(ctx context.Context, collection string, live, reclaimed int, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compaction failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "compaction completed",
			"collection", collection,
			"live", live,
			"reclaimed", reclaimed,
			"took", took,
		)
	}
}

// LogSnapshot logs a catalog save.
func (l *Logger) LogSnapshot(ctx context.Context, generation uint64, collections int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"generation", generation,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"generation", generation,
			"collections", collections,
		)
	}
}

// LogRecovery logs a catalog load.
func (l *Logger) LogRecovery(ctx context.Context, generation uint64, collections int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "recovery failed",
			"generation", generation,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "recovery completed",
			"generation", generation,
			"collections", collections,
		)
	}
}
