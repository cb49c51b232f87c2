package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"libreg/pkg/requestcontext"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and hands
// events to a Store so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit fills in the ID, timestamp and request ID when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	base.Timestamp = base.Timestamp.UTC().Truncate(time.Microsecond)
	return p.store.Append(ctx, base)
}
