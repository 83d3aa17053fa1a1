// Package events holds the daybook.Publisher implementations.
package events

import (
	"context"
	"log/slog"

	"github.com/tinoosan/daybook/internal/service/daybook"
)

// LogPublisher writes every event as a structured log line. It is the default
// when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(l *slog.Logger) *LogPublisher {
	if l == nil {
		l = slog.Default()
	}
	return &LogPublisher{log: l}
}

func (p *LogPublisher) Publish(ctx context.Context, evt daybook.Event) error {
	attrs := []any{
		slog.String("type", string(evt.Type)),
		slog.Time("affected_from", evt.AffectedFrom),
		slog.Time("occurred_at", evt.OccurredAt),
	}
	if evt.EntryID != nil {
		attrs = append(attrs, slog.String("entry_id", evt.EntryID.String()))
	}
	if evt.Month != "" {
		attrs = append(attrs, slog.String("month", evt.Month))
	}
	p.log.InfoContext(ctx, "ledger event", attrs...)
	return nil
}
