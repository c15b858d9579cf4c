package audit

import (
	"context"
	"log/slog"
	"slices"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewLogSink creates a sink logging at Info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger, Level: slog.LevelInfo}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, ev.Fields[k]))
	}

	logger.LogAttrs(ctx, s.Level, "audit event",
		slog.String("action", ev.Action),
		slog.Int64("seq", ev.Seq),
		slog.String("request_id", ev.RequestID),
		slog.String("caller", ev.Caller),
		slog.Uint64("tick", ev.Tick),
		slog.String("event_id", ev.ID),
		slog.Attr{Key: "fields", Value: slog.GroupValue(attrs...)},
	)
	return nil
}
