package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glovelink/glove-core/internal/infrastructure/logging"
	"github.com/glovelink/glove-core/internal/learning"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// OwnerResolver maps a hardware device identifier to the user holding its
// active binding. Implemented by binding.Manager.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, deviceID string) (string, error)
}

// HeartbeatRecorder refreshes a device's liveness. Implemented by
// device.Service.
type HeartbeatRecorder interface {
	RecordHeartbeat(ctx context.Context, deviceID string, at time.Time) error
}

// Mirror receives ingested telemetry for time-series export. Writes are
// fire-and-forget; a mirror must never block the ingest path.
type Mirror interface {
	MirrorSensorEvent(event *SensorEvent)
	MirrorGestureResult(result *GestureResult)
}

// Broadcaster pushes ingested telemetry to live subscribers.
type Broadcaster interface {
	Broadcast(topic string, payload any)
}

// Service attributes incoming glove telemetry to its owning user and
// persists it. Gesture results additionally feed the learning engine in
// the same transaction, so raw history and derived statistics commit or
// roll back together.
type Service struct {
	db          *sql.DB
	owners      OwnerResolver
	heartbeats  HeartbeatRecorder
	engine      *learning.Engine
	mirror      Mirror
	broadcaster Broadcaster
	logger      *logging.Logger
}

// NewService creates a telemetry ingest service. mirror and broadcaster
// may be nil when time-series export or live push is disabled.
func NewService(db *sql.DB, owners OwnerResolver, heartbeats HeartbeatRecorder, engine *learning.Engine, mirror Mirror, broadcaster Broadcaster, logger *logging.Logger) *Service {
	return &Service{
		db:          db,
		owners:      owners,
		heartbeats:  heartbeats,
		engine:      engine,
		mirror:      mirror,
		broadcaster: broadcaster,
		logger:      logger.With("component", "telemetry"),
	}
}

const eventColumns = "id, device_id, user_id, kind, position, payload, timestamp, created_at"
const resultColumns = "id, device_id, user_id, gesture, confidence, raw_payload, recognized_text, timestamp, created_at"

// IngestSensorEvent attributes one raw sensor reading to the device's
// bound user and persists it.
//
// Fails with binding.ErrDeviceUnbound when no active binding exists; no
// row is written in that case. A zero timestamp defaults to ingestion
// time. Ingestion implies liveness, so the device is marked online and
// its heartbeat refreshed.
func (s *Service) IngestSensorEvent(ctx context.Context, deviceID string, kind SensorKind, position string, payload json.RawMessage, timestamp time.Time) (*SensorEvent, error) {
	if !IsValidKind(kind) {
		return nil, ErrInvalidKind
	}

	userID, err := s.owners.ResolveOwner(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if timestamp.IsZero() {
		timestamp = now
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	event := &SensorEvent{
		ID:        "evt-" + uuid.NewString()[:8],
		DeviceID:  deviceID,
		UserID:    userID,
		Kind:      kind,
		Position:  position,
		Payload:   payload,
		Timestamp: timestamp.UTC(),
		CreatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sensor_events (id, device_id, user_id, kind, position, payload, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.DeviceID, event.UserID, string(event.Kind), event.Position,
		string(event.Payload),
		event.Timestamp.Format(time.RFC3339), event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting sensor event: %w", err)
	}

	s.touchDevice(ctx, deviceID, now)
	if s.mirror != nil {
		s.mirror.MirrorSensorEvent(event)
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("sensor_event", event)
	}

	return event, nil
}

// IngestGestureResult attributes one recognition outcome to the device's
// bound user, persists it, and updates the pair's learning record in the
// same transaction. Either both writes commit or neither does.
//
// Fails with ErrConfidenceRange when confidence is outside [0, 1] and
// with binding.ErrDeviceUnbound when the device has no active owner.
func (s *Service) IngestGestureResult(ctx context.Context, deviceID, gesture string, confidence float64, rawPayload json.RawMessage, recognizedText string, recognitionTime time.Time) (*GestureResult, error) {
	if gesture == "" {
		return nil, ErrInvalidGesture
	}
	if confidence < 0 || confidence > 1 {
		return nil, ErrConfidenceRange
	}
	// Stored to four decimal places, same scale as the recomputed averages.
	confidence = learning.RoundConfidence(confidence)

	userID, err := s.owners.ResolveOwner(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if recognitionTime.IsZero() {
		recognitionTime = now
	}

	result := &GestureResult{
		ID:             "gst-" + uuid.NewString()[:8],
		DeviceID:       deviceID,
		UserID:         userID,
		Gesture:        gesture,
		Confidence:     confidence,
		RawPayload:     rawPayload,
		RecognizedText: recognizedText,
		Timestamp:      recognitionTime.UTC(),
		CreatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting ingest transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gesture_results (id, device_id, user_id, gesture, confidence, raw_payload, recognized_text, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.DeviceID, result.UserID, result.Gesture, result.Confidence,
		string(result.RawPayload), result.RecognizedText,
		result.Timestamp.Format(time.RFC3339), result.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting gesture result: %w", err)
	}

	if _, err := s.engine.ApplyResult(ctx, tx, userID, gesture, confidence, recognitionTime); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing gesture ingest: %w", err)
	}

	s.touchDevice(ctx, deviceID, now)
	if s.mirror != nil {
		s.mirror.MirrorGestureResult(result)
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("gesture_result", result)
	}

	return result, nil
}

// touchDevice refreshes liveness after a successful ingest. A failed
// heartbeat update does not fail the ingest; the event is already durable.
func (s *Service) touchDevice(ctx context.Context, deviceID string, at time.Time) {
	if err := s.heartbeats.RecordHeartbeat(ctx, deviceID, at); err != nil {
		s.logger.Warn("heartbeat refresh failed", "device_id", deviceID, "error", err)
	}
}

// ListSensorEvents returns stored sensor events matching the filter,
// newest first.
func (s *Service) ListSensorEvents(ctx context.Context, filter EventFilter) ([]*SensorEvent, error) {
	where, args := buildWhere([]condition{
		{"device_id = ?", filter.DeviceID != "", filter.DeviceID},
		{"user_id = ?", filter.UserID != "", filter.UserID},
		{"kind = ?", filter.Kind != "", string(filter.Kind)},
		{"timestamp >= ?", filter.Since != nil, formatTimePtr(filter.Since)},
		{"timestamp < ?", filter.Until != nil, formatTimePtr(filter.Until)},
	})

	limit, offset := clampPage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM sensor_events"+where+" ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying sensor events: %w", err)
	}
	defer rows.Close()

	events := make([]*SensorEvent, 0, limit)
	for rows.Next() {
		event, err := scanSensorEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensor events: %w", err)
	}
	return events, nil
}

// ListGestureResults returns stored gesture results matching the filter,
// newest first.
func (s *Service) ListGestureResults(ctx context.Context, filter ResultFilter) ([]*GestureResult, error) {
	where, args := buildWhere([]condition{
		{"device_id = ?", filter.DeviceID != "", filter.DeviceID},
		{"user_id = ?", filter.UserID != "", filter.UserID},
		{"gesture = ?", filter.Gesture != "", filter.Gesture},
		{"timestamp >= ?", filter.Since != nil, formatTimePtr(filter.Since)},
		{"timestamp < ?", filter.Until != nil, formatTimePtr(filter.Until)},
	})

	limit, offset := clampPage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+resultColumns+" FROM gesture_results"+where+" ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying gesture results: %w", err)
	}
	defer rows.Close()

	results := make([]*GestureResult, 0, limit)
	for rows.Next() {
		result, err := scanGestureResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gesture results: %w", err)
	}
	return results, nil
}

// RecentGestureResults returns a user's latest gesture results, newest
// first. A non-positive limit falls back to the default page size.
func (s *Service) RecentGestureResults(ctx context.Context, userID string, limit int) ([]*GestureResult, error) {
	return s.ListGestureResults(ctx, ResultFilter{UserID: userID, Limit: limit})
}

// CountSensorEvents returns the number of stored sensor events matching
// the filter. Paging fields are ignored; the count covers the whole match.
func (s *Service) CountSensorEvents(ctx context.Context, filter EventFilter) (int64, error) {
	where, args := buildWhere([]condition{
		{"device_id = ?", filter.DeviceID != "", filter.DeviceID},
		{"user_id = ?", filter.UserID != "", filter.UserID},
		{"kind = ?", filter.Kind != "", string(filter.Kind)},
		{"timestamp >= ?", filter.Since != nil, formatTimePtr(filter.Since)},
		{"timestamp < ?", filter.Until != nil, formatTimePtr(filter.Until)},
	})

	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sensor_events"+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting sensor events: %w", err)
	}
	return total, nil
}

// CountGestureResults returns the number of stored gesture results
// matching the filter, ignoring paging.
func (s *Service) CountGestureResults(ctx context.Context, filter ResultFilter) (int64, error) {
	where, args := buildWhere([]condition{
		{"device_id = ?", filter.DeviceID != "", filter.DeviceID},
		{"user_id = ?", filter.UserID != "", filter.UserID},
		{"gesture = ?", filter.Gesture != "", filter.Gesture},
		{"timestamp >= ?", filter.Since != nil, formatTimePtr(filter.Since)},
		{"timestamp < ?", filter.Until != nil, formatTimePtr(filter.Until)},
	})

	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gesture_results"+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting gesture results: %w", err)
	}
	return total, nil
}

// CountSensorEventsSince returns how many sensor events arrived at or
// after the cutoff. An empty userID counts across all users; with a
// midnight cutoff this is the today-so-far stat.
func (s *Service) CountSensorEventsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return s.CountSensorEvents(ctx, EventFilter{UserID: userID, Since: &since})
}

// PurgeSensorEventsOlderThan bulk-deletes raw sensor events with a
// timestamp before the cutoff. Gesture results and learning records are
// untouched so derived statistics survive telemetry pruning.
func (s *Service) PurgeSensorEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM sensor_events WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("purging sensor events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("purged sensor events", "deleted", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return deleted, nil
}

type condition struct {
	clause string
	set    bool
	arg    any
}

func buildWhere(conditions []condition) (string, []any) {
	clauses := make([]string, 0, len(conditions))
	args := make([]any, 0, len(conditions))
	for _, c := range conditions {
		if c.set {
			clauses = append(clauses, c.clause)
			args = append(args, c.arg)
		}
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensorEvent(scanner rowScanner) (*SensorEvent, error) {
	var event SensorEvent
	var payload, timestamp, createdAt string

	err := scanner.Scan(
		&event.ID, &event.DeviceID, &event.UserID, &event.Kind, &event.Position,
		&payload, &timestamp, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning sensor event: %w", err)
	}

	event.Payload = json.RawMessage(payload)
	if event.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	if event.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &event, nil
}

func scanGestureResult(scanner rowScanner) (*GestureResult, error) {
	var result GestureResult
	var rawPayload, timestamp, createdAt string

	err := scanner.Scan(
		&result.ID, &result.DeviceID, &result.UserID, &result.Gesture, &result.Confidence,
		&rawPayload, &result.RecognizedText, &timestamp, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning gesture result: %w", err)
	}

	if rawPayload != "" {
		result.RawPayload = json.RawMessage(rawPayload)
	}
	if result.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	if result.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &result, nil
}
