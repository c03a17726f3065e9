package persistence

import (
	"context"
	"testing"
	"time"
)

func TestTransactionRepoInsertListPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepo(openTestDB(t))
	base := time.UnixMilli(1_700_000_000_000)

	records := []TransactionRecord{
		{SessionID: "s1", DeviceAddress: "aa:bb:cc:dd:ee:ff", Command: "Probe", Frames: 1, Duration: 40 * time.Millisecond, At: base},
		{SessionID: "s1", Command: "FlashRead", Frames: 5, Duration: time.Second, At: base.Add(time.Second)},
		{SessionID: "s1", Command: "BatteryStatus", Err: "context deadline exceeded", At: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", rec.Command, err)
		}
	}

	got, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Command != "BatteryStatus" || got[1].Command != "FlashRead" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if got[0].Err == "" || got[1].Frames != 5 || got[1].Duration != time.Second {
		t.Fatalf("fields did not round trip: %+v", got)
	}

	n, err := repo.PruneBefore(ctx, base.Add(time.Second))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one pruned record, got %d", n)
	}
	all, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list after prune: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two records left, got %d", len(all))
	}
}
