package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wpplink/internal/bus"
	"wpplink/internal/connectors"
	"wpplink/internal/persistence"
)

type syncQueue struct{}

func (syncQueue) Enqueue(_ string, fn func(context.Context) error) {
	_ = fn(context.Background())
}

type recordingStore struct {
	mu   sync.Mutex
	recs []persistence.TransactionRecord
	err  error
}

func (s *recordingStore) Insert(_ context.Context, rec persistence.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func TestHistoryProjectionRecordsTransactions(t *testing.T) {
	b := bus.New(nil)
	store := &recordingStore{}
	done := StartHistoryProjection(b, syncQueue{}, store, func() string { return "00:24:e4:11:22:33" })

	b.Publish(connectors.TopicTransaction, connectors.TransactionEvent{
		SessionID: "s1",
		Command:   "BatteryStatus",
		Frames:    1,
		Duration:  40 * time.Millisecond,
	})
	b.Publish(connectors.TopicTransaction, "not an event")
	b.Publish(connectors.TopicTransaction, connectors.TransactionEvent{
		SessionID: "s1",
		Command:   "FlashRead",
		Frames:    3,
		Err:       "device error",
	})
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("projection did not stop after bus close")
	}

	if len(store.recs) != 2 {
		t.Fatalf("expected 2 records, got %+v", store.recs)
	}
	first := store.recs[0]
	if first.Command != "BatteryStatus" || first.DeviceAddress != "00:24:e4:11:22:33" || first.Duration != 40*time.Millisecond {
		t.Fatalf("unexpected first record %+v", first)
	}
	if store.recs[1].Err != "device error" || store.recs[1].Frames != 3 {
		t.Fatalf("unexpected second record %+v", store.recs[1])
	}
}

func TestHistoryProjectionSurvivesStoreErrors(t *testing.T) {
	b := bus.New(nil)
	store := &recordingStore{err: errors.New("disk full")}
	done := StartHistoryProjection(b, syncQueue{}, store, nil)

	b.Publish(connectors.TopicTransaction, connectors.TransactionEvent{Command: "Probe"})
	b.Publish(connectors.TopicTransaction, connectors.TransactionEvent{Command: "Disconnect"})
	b.Close()
	<-done

	if len(store.recs) != 2 {
		t.Fatalf("expected both events to be attempted, got %d", len(store.recs))
	}
}
