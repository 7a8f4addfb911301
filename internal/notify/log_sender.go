package notify

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	attrs := []any{
		slog.String("owner_id", msg.OwnerID),
		slog.String("kind", string(msg.Kind)),
	}
	for _, k := range slices.Sorted(maps.Keys(msg.Details)) {
		attrs = append(attrs, slog.String(k, msg.Details[k]))
	}
	s.logger.InfoContext(ctx, "Alert notification", attrs...)
	return nil
}
