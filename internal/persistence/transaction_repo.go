package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TransactionRecord is one finished request/response exchange.
type TransactionRecord struct {
	ID            int64
	SessionID     string
	DeviceAddress string
	Command       string
	Frames        int
	Duration      time.Duration
	Err           string
	At            time.Time
}

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

func (r *TransactionRepo) Insert(ctx context.Context, rec TransactionRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions(session_id, device_address, command, frames, duration_ms, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, nullableString(NormalizeAddress(rec.DeviceAddress)), rec.Command, rec.Frames,
		rec.Duration.Milliseconds(), nullableString(rec.Err), toUnixMillis(at))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *TransactionRepo) ListRecent(ctx context.Context, limit int) ([]TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, device_address, command, frames, duration_ms, error, at
		FROM transactions
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var (
			rec         TransactionRecord
			addr, errS  sql.NullString
			durMs, atMs int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &addr, &rec.Command, &rec.Frames, &durMs, &errS, &atMs); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		rec.DeviceAddress = addr.String
		rec.Err = errS.String
		rec.Duration = time.Duration(durMs) * time.Millisecond
		rec.At = fromUnixMillis(atMs)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// PruneBefore deletes records older than cutoff and reports how many went.
func (r *TransactionRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE at < ?`, toUnixMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune transactions: %w", err)
	}
	return n, nil
}
