package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glovelink/glove-core/internal/infrastructure/logging"
)

// Manager owns the device-user binding relation and its transitions.
//
// Every decision runs in its own transaction and re-reads current state;
// no binding state is cached in process. The at-most-one-active-binding
// invariant is ultimately enforced by the partial unique index on
// bindings(device_id) WHERE is_active = 1, so a race between concurrent
// binds produces exactly one success and one ErrDeviceBound.
type Manager struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewManager creates a binding manager.
func NewManager(db *sql.DB, logger *logging.Logger) *Manager {
	return &Manager{
		db:     db,
		logger: logger.With("component", "binding"),
	}
}

const bindingColumns = "id, user_id, device_id, bind_time, unbind_time, is_active, created_at, updated_at"

// Bind gives a user exclusive ownership of a device.
//
// The device is addressed by its hardware identifier. If a historical row
// exists for this exact (user, device) pair it is reactivated in place;
// otherwise a new row is created. Fails with:
//   - ErrDeviceNotFound / ErrUserNotFound if either side is missing
//   - ErrAlreadyBound if this user already actively holds the device
//   - ErrDeviceBound if another user actively holds the device
func (m *Manager) Bind(ctx context.Context, deviceID, userID string) (*Binding, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting bind transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	deviceRowID, err := resolveDeviceRow(ctx, tx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := checkUserExists(ctx, tx, userID); err != nil {
		return nil, err
	}

	// Look for the pair's historical row first: same-user double-bind is a
	// distinct failure from the device being held by someone else.
	existing, err := scanBinding(tx.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM bindings WHERE user_id = ? AND device_id = ?",
		userID, deviceRowID))
	if err != nil && !errors.Is(err, ErrBindingNotFound) {
		return nil, err
	}

	if existing != nil && existing.IsActive {
		return nil, ErrAlreadyBound
	}

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)

	var bound *Binding
	if existing != nil {
		// Reactivate the pair's row in place. The partial unique index
		// rejects this if another user holds the device.
		_, err = tx.ExecContext(ctx,
			`UPDATE bindings SET is_active = 1, bind_time = ?, unbind_time = NULL, updated_at = ?
			 WHERE id = ?`,
			nowStr, nowStr, existing.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDeviceBound
			}
			return nil, fmt.Errorf("reactivating binding: %w", err)
		}
		existing.IsActive = true
		existing.BindTime = now
		existing.UnbindTime = nil
		existing.UpdatedAt = now
		bound = existing
	} else {
		b := &Binding{
			ID:          "bnd-" + uuid.NewString()[:8],
			UserID:      userID,
			DeviceRowID: deviceRowID,
			BindTime:    now,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bindings (id, user_id, device_id, bind_time, unbind_time, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, NULL, 1, ?, ?)`,
			b.ID, b.UserID, b.DeviceRowID, nowStr, nowStr, nowStr,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDeviceBound
			}
			return nil, fmt.Errorf("creating binding: %w", err)
		}
		bound = b
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDeviceBound
		}
		return nil, fmt.Errorf("committing bind: %w", err)
	}

	m.logger.Info("device bound", "device_id", deviceID, "user_id", userID, "binding_id", bound.ID)
	return bound, nil
}

// Unbind releases a user's hold on a device.
//
// The binding row is deactivated with its unbind time stamped; it stays
// in the table as history. Fails with ErrBindingNotFound if the pair has
// no row at all, and ErrBindingInactive if the row is already inactive.
func (m *Manager) Unbind(ctx context.Context, deviceID, userID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting unbind transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	deviceRowID, err := resolveDeviceRow(ctx, tx, deviceID)
	if err != nil {
		return err
	}

	existing, err := scanBinding(tx.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM bindings WHERE user_id = ? AND device_id = ?",
		userID, deviceRowID))
	if err != nil {
		return err
	}
	if !existing.IsActive {
		return ErrBindingInactive
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`UPDATE bindings SET is_active = 0, unbind_time = ?, updated_at = ? WHERE id = ?`,
		now, now, existing.ID,
	); err != nil {
		return fmt.Errorf("deactivating binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing unbind: %w", err)
	}

	m.logger.Info("device unbound", "device_id", deviceID, "user_id", userID, "binding_id", existing.ID)
	return nil
}

// ResolveOwner returns the user holding the device's single active binding.
//
// This is the lookup telemetry ingest runs for every incoming event; it is
// a single indexed read against the partial unique index. Returns
// ErrDeviceUnbound when the device exists but nobody holds it.
func (m *Manager) ResolveOwner(ctx context.Context, deviceID string) (string, error) {
	var userID string
	err := m.db.QueryRowContext(ctx,
		`SELECT b.user_id FROM bindings b
		 JOIN devices d ON b.device_id = d.id
		 WHERE d.device_id = ? AND b.is_active = 1`,
		deviceID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrDeviceUnbound
		}
		return "", fmt.Errorf("resolving device owner: %w", err)
	}
	return userID, nil
}

// HasActiveBindingForDevice reports whether the device row has an active
// binding. Used by the device registry to block deletion of bound gloves.
func (m *Manager) HasActiveBindingForDevice(ctx context.Context, deviceRowID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bindings WHERE device_id = ? AND is_active = 1",
		deviceRowID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking active binding: %w", err)
	}
	return n > 0, nil
}

// GetForPair returns the binding row for a (user, device) pair, active or not.
func (m *Manager) GetForPair(ctx context.Context, deviceID, userID string) (*Binding, error) {
	var deviceRowID string
	err := m.db.QueryRowContext(ctx,
		"SELECT id FROM devices WHERE device_id = ?", deviceID).Scan(&deviceRowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("resolving device: %w", err)
	}

	return scanBinding(m.db.QueryRowContext(ctx,
		"SELECT "+bindingColumns+" FROM bindings WHERE user_id = ? AND device_id = ?",
		userID, deviceRowID))
}

// ListActiveForUser returns the devices a user currently holds.
func (m *Manager) ListActiveForUser(ctx context.Context, userID string) ([]ActiveBinding, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.device_id, b.bind_time, b.unbind_time, b.is_active,
			b.created_at, b.updated_at, d.device_id, d.name
		 FROM bindings b
		 JOIN devices d ON b.device_id = d.id
		 WHERE b.user_id = ? AND b.is_active = 1
		 ORDER BY b.bind_time ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active bindings: %w", err)
	}
	defer rows.Close()

	var bindings []ActiveBinding
	for rows.Next() {
		var ab ActiveBinding
		var bindTime, createdAt, updatedAt string
		var unbindTime sql.NullString
		var isActive int

		if err := rows.Scan(&ab.ID, &ab.UserID, &ab.DeviceRowID, &bindTime, &unbindTime,
			&isActive, &createdAt, &updatedAt, &ab.DeviceID, &ab.DeviceName); err != nil {
			return nil, fmt.Errorf("scanning active binding: %w", err)
		}

		ab.IsActive = isActive != 0
		ab.BindTime, _ = time.Parse(time.RFC3339, bindTime)    //nolint:errcheck // format is controlled
		ab.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)  //nolint:errcheck // format is controlled
		ab.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)  //nolint:errcheck // format is controlled
		if unbindTime.Valid {
			t, _ := time.Parse(time.RFC3339, unbindTime.String) //nolint:errcheck // format is controlled
			ab.UnbindTime = &t
		}
		bindings = append(bindings, ab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating active bindings: %w", err)
	}

	if bindings == nil {
		bindings = []ActiveBinding{}
	}
	return bindings, nil
}

// ListHistoryForDevice returns every binding episode a device has seen,
// newest first.
func (m *Manager) ListHistoryForDevice(ctx context.Context, deviceID string) ([]Binding, error) {
	var deviceRowID string
	err := m.db.QueryRowContext(ctx,
		"SELECT id FROM devices WHERE device_id = ?", deviceID).Scan(&deviceRowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("resolving device: %w", err)
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT "+bindingColumns+" FROM bindings WHERE device_id = ? ORDER BY bind_time DESC",
		deviceRowID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing binding history: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		b, err := scanBindingRows(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating binding history: %w", err)
	}

	if bindings == nil {
		bindings = []Binding{}
	}
	return bindings, nil
}

// CountActive returns the number of active bindings in the system.
func (m *Manager) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bindings WHERE is_active = 1").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active bindings: %w", err)
	}
	return n, nil
}

// resolveDeviceRow maps a hardware identifier to the device's internal row ID.
func resolveDeviceRow(ctx context.Context, tx *sql.Tx, deviceID string) (string, error) {
	var rowID string
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM devices WHERE device_id = ?", deviceID).Scan(&rowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrDeviceNotFound
		}
		return "", fmt.Errorf("resolving device: %w", err)
	}
	return rowID, nil
}

// checkUserExists confirms the user row is present.
func checkUserExists(ctx context.Context, tx *sql.Tx, userID string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE id = ?", userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("resolving user: %w", err)
	}
	return nil
}

// rowScanner is an interface for sql.Row and sql.Rows Scan methods.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanBinding scans a binding from a single-row query.
func scanBinding(row *sql.Row) (*Binding, error) {
	b, err := scanBindingFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBindingNotFound
		}
		return nil, err
	}
	return b, nil
}

// scanBindingRows scans a binding from an iterating query.
func scanBindingRows(rows *sql.Rows) (*Binding, error) {
	return scanBindingFrom(rows)
}

func scanBindingFrom(s rowScanner) (*Binding, error) {
	var b Binding
	var bindTime, createdAt, updatedAt string
	var unbindTime sql.NullString
	var isActive int

	err := s.Scan(&b.ID, &b.UserID, &b.DeviceRowID, &bindTime, &unbindTime,
		&isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning binding: %w", err)
	}

	b.IsActive = isActive != 0
	b.BindTime, _ = time.Parse(time.RFC3339, bindTime)   //nolint:errcheck // format is controlled
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	if unbindTime.Valid {
		t, _ := time.Parse(time.RFC3339, unbindTime.String) //nolint:errcheck // format is controlled
		b.UnbindTime = &t
	}

	return &b, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
