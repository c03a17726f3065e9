package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrDeviceNotFound = errors.New("device not found")

// Device is what we remember about a watch or scale between runs.
type Device struct {
	Address       string
	Model         string
	Name          string
	MfgID         string
	HardVersion   uint32
	SoftVersion   uint32
	BLVersion     uint32
	RescueVersion uint32
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
	LastAuthAt    time.Time
	Challenged    bool
	LastSessionID string
}

type DeviceRepo struct {
	db *sql.DB
}

func NewDeviceRepo(db *sql.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// NormalizeAddress returns the canonical upper-case form used as the key.
func NormalizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

// Upsert stores d. Empty identity fields keep what was stored before, and
// first_seen_at is only set on insert.
func (r *DeviceRepo) Upsert(ctx context.Context, d Device) error {
	addr := NormalizeAddress(d.Address)
	if addr == "" {
		return errors.New("device address is required")
	}
	seen := d.LastSeenAt
	if seen.IsZero() {
		seen = time.Now()
	}
	first := d.FirstSeenAt
	if first.IsZero() {
		first = seen
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices(address, model, name, mfg_id, hard_version, soft_version, bl_version, rescue_version, first_seen_at, last_seen_at, last_auth_at, challenged, last_session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			model = CASE WHEN excluded.model = '' THEN devices.model ELSE excluded.model END,
			name = COALESCE(excluded.name, devices.name),
			mfg_id = COALESCE(excluded.mfg_id, devices.mfg_id),
			hard_version = COALESCE(excluded.hard_version, devices.hard_version),
			soft_version = COALESCE(excluded.soft_version, devices.soft_version),
			bl_version = COALESCE(excluded.bl_version, devices.bl_version),
			rescue_version = COALESCE(excluded.rescue_version, devices.rescue_version),
			last_seen_at = excluded.last_seen_at,
			last_auth_at = MAX(excluded.last_auth_at, devices.last_auth_at),
			challenged = CASE WHEN excluded.last_auth_at > 0 THEN excluded.challenged ELSE devices.challenged END,
			last_session_id = COALESCE(excluded.last_session_id, devices.last_session_id)
	`, addr, d.Model, nullableString(d.Name), nullableString(d.MfgID),
		nullableVersion(d.HardVersion), nullableVersion(d.SoftVersion), nullableVersion(d.BLVersion), nullableVersion(d.RescueVersion),
		toUnixMillis(first), toUnixMillis(seen), toUnixMillis(d.LastAuthAt), boolToInt(d.Challenged), nullableString(d.LastSessionID))
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) Get(ctx context.Context, address string) (Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE address = ?
	`, NormalizeAddress(address))
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

// List returns devices, most recently seen first.
func (r *DeviceRepo) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		ORDER BY last_seen_at DESC, address
	`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return out, nil
}

func (r *DeviceRepo) Delete(ctx context.Context, address string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE address = ?`, NormalizeAddress(address))
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

const deviceColumns = `address, model, name, mfg_id, hard_version, soft_version, bl_version, rescue_version, first_seen_at, last_seen_at, last_auth_at, challenged, last_session_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (Device, error) {
	var (
		d                       Device
		name, mfg, session      sql.NullString
		hard, soft, bl, rescue  sql.NullInt64
		firstMs, seenMs, authMs int64
		challenged              int64
	)
	if err := s.Scan(&d.Address, &d.Model, &name, &mfg, &hard, &soft, &bl, &rescue, &firstMs, &seenMs, &authMs, &challenged, &session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Device{}, err
		}
		return Device{}, fmt.Errorf("scan device: %w", err)
	}
	d.Name = name.String
	d.MfgID = mfg.String
	d.LastSessionID = session.String
	d.HardVersion = uint32(hard.Int64)
	d.SoftVersion = uint32(soft.Int64)
	d.BLVersion = uint32(bl.Int64)
	d.RescueVersion = uint32(rescue.Int64)
	d.FirstSeenAt = fromUnixMillis(firstMs)
	d.LastSeenAt = fromUnixMillis(seenMs)
	d.LastAuthAt = fromUnixMillis(authMs)
	d.Challenged = challenged != 0
	return d, nil
}

func nullableVersion(v uint32) any {
	if v == 0 {
		return nil
	}
	return int64(v)
}
