package app

import (
	"context"

	"wpplink/internal/bus"
	"wpplink/internal/connectors"
	"wpplink/internal/persistence"
)

// WriteQueue serializes persistence writes coming from bus events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// TransactionStore is the part of the transaction repo the projection uses.
type TransactionStore interface {
	Insert(ctx context.Context, rec persistence.TransactionRecord) error
}

// StartHistoryProjection records every finished transaction published on
// the bus. It runs until the subscription is closed by the bus and closes
// the returned channel once the last event was queued.
func StartHistoryProjection(b bus.MessageBus, queue WriteQueue, repo TransactionStore, deviceAddress func() string) <-chan struct{} {
	sub := b.Subscribe(connectors.TopicTransaction)
	done := make(chan struct{})

	go func() {
		defer close(done)
		bus.Listen(context.Background(), sub, func(raw any) {
			ev, ok := raw.(connectors.TransactionEvent)
			if !ok {
				return
			}
			rec := persistence.TransactionRecord{
				SessionID: ev.SessionID,
				Command:   ev.Command,
				Frames:    ev.Frames,
				Duration:  ev.Duration,
				Err:       ev.Err,
			}
			if deviceAddress != nil {
				rec.DeviceAddress = deviceAddress()
			}
			queue.Enqueue("insert_transaction", func(writeCtx context.Context) error {
				return repo.Insert(writeCtx, rec)
			})
		})
	}()

	return done
}
