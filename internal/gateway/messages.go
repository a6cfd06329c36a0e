package gateway

import (
	"encoding/json"
	"time"
)

// SensorMessage is the wire format gloves publish on the sensor channel.
//
// Timestamp is optional; absent or zero means "use ingestion time".
type SensorMessage struct {
	// Kind is the sensor class: flex, strain, imu.
	Kind string `json:"kind"`

	// Position is an optional label for where the sensor sits (e.g., "index_tip").
	Position string `json:"position,omitempty"`

	// Payload is the structured reading, passed through untouched.
	Payload json.RawMessage `json:"payload"`

	// Timestamp is when the glove sampled the reading (RFC3339).
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// GestureMessage is the wire format the AI inference service publishes on
// the gesture channel.
type GestureMessage struct {
	// Gesture is the recognised gesture label.
	Gesture string `json:"gesture"`

	// Confidence is the recognition confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// RawPayload optionally carries the frames the recognition was based on.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	// RecognizedText is the optional text rendering of the gesture.
	RecognizedText string `json:"recognized_text,omitempty"`

	// Timestamp is the recognition time (RFC3339).
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// StatusMessage is the wire format gloves publish on the status channel.
type StatusMessage struct {
	// Status is the reported lifecycle status: online, offline, maintenance.
	Status string `json:"status"`

	// Timestamp is when the status was observed (RFC3339).
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// AcceptedGesture is republished by the core after owner attribution, so
// downstream consumers see only results that passed binding checks.
type AcceptedGesture struct {
	ID             string  `json:"id"`
	DeviceID       string  `json:"device_id"`
	UserID         string  `json:"user_id"`
	Gesture        string  `json:"gesture"`
	Confidence     float64 `json:"confidence"`
	RecognizedText string  `json:"recognized_text,omitempty"`
	Timestamp      string  `json:"timestamp"`
}
