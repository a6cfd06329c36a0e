package telemetry

import (
	"encoding/json"
	"time"
)

// SensorKind identifies the class of glove sensor a reading came from.
type SensorKind string

// Sensor kinds produced by the glove hardware.
const (
	KindFlex   SensorKind = "flex"
	KindStrain SensorKind = "strain"
	KindIMU    SensorKind = "imu"
)

// ValidKinds lists all accepted sensor kinds.
var ValidKinds = []SensorKind{KindFlex, KindStrain, KindIMU}

// IsValidKind reports whether the given kind is one of the accepted values.
func IsValidKind(kind SensorKind) bool {
	for _, k := range ValidKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// SensorEvent is one immutable raw reading from a bound glove.
//
// DeviceID is the hardware identifier the glove reports on the wire.
// UserID is the owner resolved from the active binding at ingest time.
type SensorEvent struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	UserID    string          `json:"user_id"`
	Kind      SensorKind      `json:"kind"`
	Position  string          `json:"position,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	CreatedAt time.Time       `json:"created_at"`
}

// GestureResult is one immutable recognition outcome from the AI service.
type GestureResult struct {
	ID             string          `json:"id"`
	DeviceID       string          `json:"device_id"`
	UserID         string          `json:"user_id"`
	Gesture        string          `json:"gesture"`
	Confidence     float64         `json:"confidence"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	RecognizedText string          `json:"recognized_text,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	CreatedAt      time.Time       `json:"created_at"`
}

// EventFilter narrows sensor event listings. Zero values mean "any".
type EventFilter struct {
	DeviceID string
	UserID   string
	Kind     SensorKind
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// ResultFilter narrows gesture result listings. Zero values mean "any".
type ResultFilter struct {
	DeviceID string
	UserID   string
	Gesture  string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}
