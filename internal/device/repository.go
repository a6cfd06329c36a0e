package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its internal primary key.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByDeviceID retrieves a device by its hardware identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByStatus retrieves all devices with a given status.
	ListByStatus(ctx context.Context, status Status) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the hardware identifier or MAC address
	// is already registered.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by internal ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateStatus updates only the connectivity status of a device.
	UpdateStatus(ctx context.Context, deviceID string, status Status) error

	// TouchHeartbeat records a heartbeat and marks the device online.
	// Called on every telemetry message and status report.
	TouchHeartbeat(ctx context.Context, deviceID string, at time.Time) error

	// CountByStatus returns device counts grouped by status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, device_id, name, type, hardware_version, firmware_version,
	mac_address, status, location, description, last_heartbeat, created_at, updated_at`

// GetByID retrieves a device by its internal primary key.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE id = ?"

	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDeviceFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetByDeviceID retrieves a device by its hardware identifier.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE device_id = ?"

	row := r.db.QueryRowContext(ctx, query, deviceID)
	d, err := scanDeviceFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by device_id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices ORDER BY name"
	return r.queryDevices(ctx, query)
}

// ListByStatus retrieves all devices with a given status.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, status Status) ([]Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices WHERE status = ? ORDER BY name"
	return r.queryDevices(ctx, query, string(status))
}

// Create inserts a new device. The internal ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	if d.ID == "" {
		d.ID = "dev-" + uuid.NewString()[:8]
	}
	if d.Type == "" {
		d.Type = TypeDataGlove
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}

	now := time.Now().UTC().Format(time.RFC3339)
	d.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	d.UpdatedAt = d.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, device_id, name, type, hardware_version, firmware_version,
			mac_address, status, location, description, last_heartbeat, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		d.ID, d.DeviceID, d.Name, d.Type, d.HardwareVersion, d.FirmwareVersion,
		nullableString(d.MACAddress), string(d.Status), d.Location, d.Description,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

// Update modifies an existing device's mutable fields.
// The hardware identifier is immutable once registered.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, hardware_version = ?, firmware_version = ?,
			mac_address = ?, status = ?, location = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		d.Name, d.HardwareVersion, d.FirmwareVersion,
		nullableString(d.MACAddress), string(d.Status), d.Location, d.Description,
		now, d.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("updating device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by internal ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateStatus updates only the connectivity status, addressed by hardware ID.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, deviceID string, status Status) error {
	if !IsValidStatus(status) {
		return ErrInvalidStatus
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := "UPDATE devices SET status = ?, updated_at = ? WHERE device_id = ?"
	args := []any{string(status), now, deviceID}
	if status == StatusOnline {
		// A device reporting itself online counts as a heartbeat.
		query = "UPDATE devices SET status = ?, updated_at = ?, last_heartbeat = ? WHERE device_id = ?"
		args = []any{string(status), now, now, deviceID}
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// TouchHeartbeat records a heartbeat and marks the device online.
func (r *SQLiteRepository) TouchHeartbeat(ctx context.Context, deviceID string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_heartbeat = ?, status = ?, updated_at = ? WHERE device_id = ?",
		ts, string(StatusOnline), now, deviceID,
	)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// CountByStatus returns device counts grouped by status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM devices GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning device count: %w", err)
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device counts: %w", err)
	}
	return counts, nil
}

// queryDevices executes a query and scans all device results.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceFrom(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanDeviceFrom scans a device from any scanner (Row or Rows).
func scanDeviceFrom(s scanner) (*Device, error) {
	var d Device
	var status string
	var mac, heartbeat sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&d.ID, &d.DeviceID, &d.Name, &d.Type,
		&d.HardwareVersion, &d.FirmwareVersion,
		&mac, &status, &d.Location, &d.Description,
		&heartbeat, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)
	if mac.Valid {
		d.MACAddress = &mac.String
	}
	if heartbeat.Valid {
		t, _ := time.Parse(time.RFC3339, heartbeat.String) //nolint:errcheck // format is controlled
		d.LastHeartbeat = &t
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &d, nil
}

// Helper functions.

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
