package audit

import (
	"context"
	"errors"
	"log/slog"
)

// ErrBufferFull is returned when the worker has fallen behind.
var ErrBufferFull = errors.New("audit buffer full")

// Buffer is a Store that queues events for a Worker, so request paths never
// wait on a remote sink.
type Buffer struct {
	ch chan Event
}

func NewBuffer(size int) *Buffer {
	return &Buffer{ch: make(chan Event, size)}
}

func (b *Buffer) Append(_ context.Context, event Event) error {
	select {
	case b.ch <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// Events is the worker's inbox.
func (b *Buffer) Events() <-chan Event {
	return b.ch
}

// Worker consumes audit events from a channel and forwards them to a store.
// Failed appends are logged and dropped.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run forwards events until ctx is cancelled, then flushes whatever is
// already queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event := <-w.inbox:
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.inbox:
			w.forward(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, event Event) {
	if err := w.store.Append(ctx, event); err != nil && w.logger != nil {
		w.logger.ErrorContext(ctx, "failed to forward audit event",
			"error", err,
			"event_id", event.ID,
			"type", event.Type,
		)
	}
}
