package learning

import (
	"errors"
	"math"
	"time"
)

// SuccessThreshold is the confidence at or above which a gesture result
// counts as a successful practice attempt.
const SuccessThreshold = 0.80

// confidencePrecision rounds stored averages to four decimal places.
const confidencePrecision = 10000

// ErrRecordNotFound is returned when no learning record exists for a
// (user, gesture) pair.
var ErrRecordNotFound = errors.New("learning: record not found")

// Record holds the running practice statistics for one (user, gesture) pair.
//
// AverageConfidence is always recomputed from the stored gesture results,
// never accumulated incrementally, so it stays exact even if results are
// backfilled or edited out of band.
type Record struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Gesture           string     `json:"gesture"`
	PracticeCount     int64      `json:"practice_count"`
	SuccessCount      int64      `json:"success_count"`
	AverageConfidence float64    `json:"average_confidence"`
	LastPracticeTime  *time.Time `json:"last_practice_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SuccessRate returns successCount / practiceCount, or 0 when the record
// has no practice attempts yet.
func (r *Record) SuccessRate() float64 {
	if r.PracticeCount == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.PracticeCount)
}

// UserTotals aggregates a user's practice statistics across all gestures.
type UserTotals struct {
	UserID        string  `json:"user_id"`
	GestureCount  int64   `json:"gesture_count"`
	PracticeCount int64   `json:"practice_count"`
	SuccessCount  int64   `json:"success_count"`
	SuccessRate   float64 `json:"success_rate"`
}

// RoundConfidence rounds a confidence value to the stored precision of
// four decimal places. Applied on ingest and whenever an average is
// recomputed, so persisted values and derived means carry the same scale.
func RoundConfidence(v float64) float64 {
	return math.Round(v*confidencePrecision) / confidencePrecision
}
