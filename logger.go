package pagestore

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/pagestore/core"
)

// Logger wraps slog.Logger with store-specific helpers.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithTxn adds a transaction field to the logger.
func (l *Logger) WithTxn(txn core.TransactionID) *Logger {
	return &Logger{
		Logger: l.Logger.With("txn", uint64(txn)),
	}
}

// WithFile adds a file field to the logger.
func (l *Logger) WithFile(file core.FileID) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", uint64(file)),
	}
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, txn core.TransactionID, err error) {
	log := l.WithTxn(txn)
	if err != nil {
		log.ErrorContext(ctx, "commit failed", "error", err)
		return
	}
	log.DebugContext(ctx, "commit completed")
}

// LogRollback logs a rollback.
func (l *Logger) LogRollback(ctx context.Context, txn core.TransactionID, err error) {
	log := l.WithTxn(txn)
	if err != nil {
		log.ErrorContext(ctx, "rollback failed", "error", err)
		return
	}
	log.DebugContext(ctx, "rollback completed")
}

// LogFileOp logs a file-level operation (create, delete, extend) inside txn.
func (l *Logger) LogFileOp(ctx context.Context, op string, txn core.TransactionID, file core.FileID, err error) {
	log := l.WithTxn(txn).WithFile(file)
	if err != nil {
		log.WarnContext(ctx, op+" failed", "error", err)
		return
	}
	log.DebugContext(ctx, op+" logged")
}

// LogCheckpoint logs a checkpoint run of steps productive steps.
func (l *Logger) LogCheckpoint(ctx context.Context, steps int, pending int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"steps", steps,
			"pending", pending,
			"error", err,
		)
		return
	}
	if steps > 0 {
		l.DebugContext(ctx, "checkpoint completed",
			"steps", steps,
			"pending", pending,
		)
	}
}

// LogTruncate logs that the WAL was emptied.
func (l *Logger) LogTruncate(ctx context.Context, bytes int64) {
	l.InfoContext(ctx, "WAL truncated",
		"bytes", bytes,
	)
}

// LogRecovery logs a crash recovery run.
func (l *Logger) LogRecovery(ctx context.Context, stats RecoveryStats, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "crash recovery failed",
			"entries_replayed", stats.Replayed,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "crash recovery completed",
		"entries_scanned", stats.Scanned,
		"entries_replayed", stats.Replayed,
		"entries_discarded", stats.Discarded,
		"transactions_committed", stats.Committed,
		"torn_tail", stats.TornTail,
		"elapsed", elapsed,
	)
}
