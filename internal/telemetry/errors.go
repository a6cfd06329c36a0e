package telemetry

import "errors"

var (
	// ErrInvalidKind is returned when a sensor event carries an unknown kind.
	ErrInvalidKind = errors.New("telemetry: invalid sensor kind")

	// ErrInvalidGesture is returned when a gesture result has an empty label.
	ErrInvalidGesture = errors.New("telemetry: gesture label is required")

	// ErrConfidenceRange is returned when a confidence lies outside [0, 1].
	ErrConfidenceRange = errors.New("telemetry: confidence out of range")
)
