package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/glovelink/glove-core/internal/infrastructure/logging"
)

// Engine maintains one Record per (user, gesture) pair.
//
// ApplyResult runs inside the caller's transaction so a gesture result and
// its statistics update commit or roll back together. The read queries run
// against the shared connection and never mutate state.
type Engine struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewEngine creates a learning aggregation engine.
func NewEngine(db *sql.DB, logger *logging.Logger) *Engine {
	return &Engine{
		db:     db,
		logger: logger.With("component", "learning"),
	}
}

const recordColumns = "id, user_id, gesture, practice_count, success_count, average_confidence, last_practice_time, created_at, updated_at"

// ApplyResult folds one gesture result into the pair's record.
//
// The caller must have inserted the gesture_results row in the same
// transaction before calling; the average is recomputed from all stored
// rows for the pair, including that one. A result with confidence at or
// above SuccessThreshold counts as a success.
func (e *Engine) ApplyResult(ctx context.Context, tx *sql.Tx, userID, gesture string, confidence float64, recognitionTime time.Time) (*Record, error) {
	record, err := scanRecord(tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM learning_records WHERE user_id = ? AND gesture = ?",
		userID, gesture))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	practice := recognitionTime.UTC()

	if record == nil {
		record = &Record{
			ID:        "lrn-" + uuid.NewString()[:8],
			UserID:    userID,
			Gesture:   gesture,
			CreatedAt: now,
		}
	}

	record.PracticeCount++
	if confidence >= SuccessThreshold {
		record.SuccessCount++
	}
	record.LastPracticeTime = &practice
	record.UpdatedAt = now

	// Exact mean over the full history, read inside the same transaction.
	// Recompute-from-source makes concurrent updates to the same pair safe
	// without a read-modify-write on a cached sum.
	var avg sql.NullFloat64
	err = tx.QueryRowContext(ctx,
		"SELECT AVG(confidence) FROM gesture_results WHERE user_id = ? AND gesture = ?",
		userID, gesture,
	).Scan(&avg)
	if err != nil {
		return nil, fmt.Errorf("recomputing average confidence: %w", err)
	}
	if avg.Valid {
		record.AverageConfidence = RoundConfidence(avg.Float64)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO learning_records (id, user_id, gesture, practice_count, success_count, average_confidence, last_practice_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, gesture) DO UPDATE SET
		   practice_count = excluded.practice_count,
		   success_count = excluded.success_count,
		   average_confidence = excluded.average_confidence,
		   last_practice_time = excluded.last_practice_time,
		   updated_at = excluded.updated_at`,
		record.ID, record.UserID, record.Gesture,
		record.PracticeCount, record.SuccessCount, record.AverageConfidence,
		practice.Format(time.RFC3339),
		record.CreatedAt.Format(time.RFC3339), record.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting learning record: %w", err)
	}

	return record, nil
}

// GetForPair returns the record for one (user, gesture) pair.
func (e *Engine) GetForPair(ctx context.Context, userID, gesture string) (*Record, error) {
	return scanRecord(e.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM learning_records WHERE user_id = ? AND gesture = ?",
		userID, gesture))
}

// ListForUser returns all of a user's records, most practiced first.
func (e *Engine) ListForUser(ctx context.Context, userID string) ([]*Record, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM learning_records WHERE user_id = ? ORDER BY practice_count DESC, gesture ASC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying learning records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// TopByPracticeCount returns the most practiced records. An empty userID
// ranks across all users; otherwise only that user's gestures compete.
func (e *Engine) TopByPracticeCount(ctx context.Context, userID string, limit int) ([]*Record, error) {
	return e.top(ctx, "practice_count", userID, limit)
}

// TopByAverageConfidence returns the highest scoring records. An empty
// userID ranks across all users.
func (e *Engine) TopByAverageConfidence(ctx context.Context, userID string, limit int) ([]*Record, error) {
	return e.top(ctx, "average_confidence", userID, limit)
}

func (e *Engine) top(ctx context.Context, column, userID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 10
	}

	query := "SELECT " + recordColumns + " FROM learning_records"
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY " + column + " DESC, gesture ASC LIMIT ?"
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying top records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// TotalsForUser aggregates practice statistics across all of a user's gestures.
func (e *Engine) TotalsForUser(ctx context.Context, userID string) (*UserTotals, error) {
	totals := &UserTotals{UserID: userID}
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(practice_count), 0), COALESCE(SUM(success_count), 0)
		 FROM learning_records WHERE user_id = ?`,
		userID,
	).Scan(&totals.GestureCount, &totals.PracticeCount, &totals.SuccessCount)
	if err != nil {
		return nil, fmt.Errorf("aggregating user totals: %w", err)
	}
	if totals.PracticeCount > 0 {
		totals.SuccessRate = RoundConfidence(float64(totals.SuccessCount) / float64(totals.PracticeCount))
	}
	return totals, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	record, err := scanRecordFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return record, err
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	records := make([]*Record, 0)
	for rows.Next() {
		record, err := scanRecordFrom(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating learning records: %w", err)
	}
	return records, nil
}

func scanRecordFrom(scanner rowScanner) (*Record, error) {
	var record Record
	var lastPractice sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&record.ID, &record.UserID, &record.Gesture,
		&record.PracticeCount, &record.SuccessCount, &record.AverageConfidence,
		&lastPractice, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning learning record: %w", err)
	}

	if lastPractice.Valid {
		t, err := time.Parse(time.RFC3339, lastPractice.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_practice_time: %w", err)
		}
		record.LastPracticeTime = &t
	}
	if record.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if record.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &record, nil
}
