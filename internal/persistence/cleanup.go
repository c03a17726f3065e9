package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// Cleared counts the rows ClearDatabase removed.
type Cleared struct {
	Devices      int64
	Transactions int64
}

// ClearDatabase forgets every device and the whole transaction history in
// one transaction.
func ClearDatabase(ctx context.Context, db *sql.DB) (Cleared, error) {
	if db == nil {
		return Cleared{}, fmt.Errorf("database is not initialized")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Cleared{}, fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var cleared Cleared
	for _, table := range []struct {
		name  string
		count *int64
	}{
		{name: "transactions", count: &cleared.Transactions},
		{name: "devices", count: &cleared.Devices},
	} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table.name)
		if err != nil {
			return Cleared{}, fmt.Errorf("clear %s: %w", table.name, err)
		}
		if *table.count, err = res.RowsAffected(); err != nil {
			return Cleared{}, fmt.Errorf("count cleared %s: %w", table.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Cleared{}, fmt.Errorf("commit clear tx: %w", err)
	}

	return cleared, nil
}
