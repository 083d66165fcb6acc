package vecseg

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/vecseg/model"
)

// Logger wraps slog.Logger with segment-manager specific helpers.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithCollection adds a collection_id field to the logger.
func (l *Logger) WithCollection(id model.UniqueID) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection_id", id.String()),
	}
}

// WithSegment adds the identifying fields of a segment to the logger.
func (l *Logger) WithSegment(seg model.Segment) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			"segment_id", seg.ID.String(),
			"scope", string(seg.Scope),
			"collection_id", seg.Collection.String(),
		),
	}
}

// LogInstanceCreated logs the construction of a segment instance.
func (l *Logger) LogInstanceCreated(ctx context.Context, seg model.Segment, err error) {
	sl := l.WithSegment(seg)
	if err != nil {
		sl.ErrorContext(ctx, "segment instance creation failed", "type", string(seg.Type), "error", err)
	} else {
		sl.DebugContext(ctx, "segment instance created", "type", string(seg.Type))
	}
}

// LogFootprintEviction logs the eviction of a vector segment by the
// footprint governor.
func (l *Logger) LogFootprintEviction(ctx context.Context, seg model.Segment, bytes int64, err error) {
	sl := l.WithSegment(seg)
	if err != nil {
		sl.WarnContext(ctx, "footprint eviction stop failed", "bytes", bytes, "error", err)
	} else {
		sl.InfoContext(ctx, "segment evicted for footprint", "bytes", bytes)
	}
}

// LogFileHandleEviction logs the closing of a segment's files by the
// file-handle governor.
func (l *Logger) LogFileHandleEviction(collection model.UniqueID, err error) {
	cl := l.WithCollection(collection)
	if err != nil {
		cl.Warn("closing persistent resources failed", "error", err)
	} else {
		cl.Debug("persistent resources closed")
	}
}

// LogOverBudget logs that admission proceeds without room in the footprint
// budget.
func (l *Logger) LogOverBudget(ctx context.Context, resident, incoming, budget int64) {
	l.WarnContext(ctx, "footprint budget exceeded, nothing left to evict",
		"resident_bytes", resident,
		"incoming_bytes", incoming,
		"budget_bytes", budget,
	)
}

// LogDelete logs the deletion of a collection's segments.
func (l *Logger) LogDelete(ctx context.Context, collection model.UniqueID, segments int, err error) {
	cl := l.WithCollection(collection)
	if err != nil {
		cl.ErrorContext(ctx, "segment deletion completed with errors", "segments", segments, "error", err)
	} else {
		cl.InfoContext(ctx, "segments deleted", "segments", segments)
	}
}

// LogReset logs a full manager reset.
func (l *Logger) LogReset(ctx context.Context, instances int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reset completed with errors",
			"instances", instances,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "reset completed",
			"instances", instances,
		)
	}
}
