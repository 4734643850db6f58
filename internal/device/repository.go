package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/thinglink-core/internal/pairing"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Repository defines persistence for the recent list.
type Repository interface {
	// GetByID returns ErrDeviceNotFound for an unknown id.
	GetByID(ctx context.Context, devID string) (*PairedDevice, error)

	// ListRecent returns up to limit entries, newest first. limit <= 0
	// returns all.
	ListRecent(ctx context.Context, limit int) ([]PairedDevice, error)

	// Upsert inserts d or refreshes an existing entry. Re-pairing a
	// device moves it to the top of the list.
	Upsert(ctx context.Context, d PairedDevice) error

	// Delete returns ErrDeviceNotFound for an unknown id.
	Delete(ctx context.Context, devID string) error
}

// SQLiteRepository implements Repository on the paired_devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated
// database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT dev_id, name, icon_url, product_id, uuid, home_id, mode, paired_at, updated_at
		FROM paired_devices`

// GetByID retrieves one entry.
func (r *SQLiteRepository) GetByID(ctx context.Context, devID string) (*PairedDevice, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE dev_id = ?`, devID)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying paired device: %w", err)
	}
	return d, nil
}

// ListRecent retrieves entries newest first.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]PairedDevice, error) {
	query := selectColumns + ` ORDER BY paired_at DESC, dev_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying paired devices: %w", err)
	}
	defer rows.Close()

	var devices []PairedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning paired device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating paired devices: %w", err)
	}
	return devices, nil
}

// Upsert inserts or refreshes an entry.
func (r *SQLiteRepository) Upsert(ctx context.Context, d PairedDevice) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.PairedAt
	}

	query := `
		INSERT INTO paired_devices (dev_id, name, icon_url, product_id, uuid, home_id, mode, paired_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dev_id) DO UPDATE SET
			name = excluded.name,
			icon_url = excluded.icon_url,
			product_id = excluded.product_id,
			uuid = excluded.uuid,
			home_id = excluded.home_id,
			mode = excluded.mode,
			paired_at = excluded.paired_at,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		d.DevID, d.Name, d.IconURL, d.ProductID, d.UUID, d.HomeID, string(d.Mode),
		formatTime(d.PairedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting paired device: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *SQLiteRepository) Delete(ctx context.Context, devID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM paired_devices WHERE dev_id = ?`, devID)
	if err != nil {
		return fmt.Errorf("deleting paired device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (*PairedDevice, error) {
	var (
		d         PairedDevice
		mode      string
		pairedAt  string
		updatedAt string
	)
	if err := row.Scan(&d.DevID, &d.Name, &d.IconURL, &d.ProductID, &d.UUID, &d.HomeID, &mode, &pairedAt, &updatedAt); err != nil {
		return nil, err
	}
	d.Mode = pairing.Mode(mode)

	var err error
	if d.PairedAt, err = parseTime(pairedAt); err != nil {
		return nil, fmt.Errorf("parsing paired_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
