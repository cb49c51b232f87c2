package audit

import (
	"context"
	"log/slog"
)

// LogStore writes each event as a structured log record and retains nothing.
// It stands in for a broker when none is configured.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.Time("timestamp", event.Timestamp),
		slog.String("opds_url", event.OPDSURL),
	}
	if event.LibraryID != "" {
		attrs = append(attrs, slog.String("library_id", event.LibraryID))
	}
	if event.Code != "" {
		attrs = append(attrs, slog.String("code", event.Code), slog.String("detail", event.Detail))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit event", attrs...)
	return nil
}
