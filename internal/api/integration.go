package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/glovelink/glove-core/internal/binding"
	"github.com/glovelink/glove-core/internal/device"
	"github.com/glovelink/glove-core/internal/telemetry"
)

// HTTP ingest mirrors the MQTT feed for edge gateways that cannot reach
// the broker. Both paths run the same ingest pipeline.

// ingestSensorRequest is the request body for POST /ingest/sensor-events.
type ingestSensorRequest struct {
	DeviceID  string          `json:"device_id"`
	Kind      string          `json:"kind"`
	Position  string          `json:"position"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp *time.Time      `json:"timestamp"`
}

// ingestGestureRequest is the request body for POST /ingest/gesture-results.
type ingestGestureRequest struct {
	DeviceID       string          `json:"device_id"`
	Gesture        string          `json:"gesture"`
	Confidence     float64         `json:"confidence"`
	RawPayload     json.RawMessage `json:"raw_payload"`
	RecognizedText string          `json:"recognized_text"`
	Timestamp      *time.Time      `json:"timestamp"`
}

// handleIngestSensorEvent accepts a sensor reading over HTTP.
func (s *Server) handleIngestSensorEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestSensorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}

	event, err := s.telemetry.IngestSensorEvent(r.Context(), req.DeviceID,
		telemetry.SensorKind(req.Kind), req.Position, req.Payload, timeOrZero(req.Timestamp))
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// handleIngestGestureResult accepts a recognition result over HTTP.
func (s *Server) handleIngestGestureResult(w http.ResponseWriter, r *http.Request) {
	var req ingestGestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}

	result, err := s.telemetry.IngestGestureResult(r.Context(), req.DeviceID,
		req.Gesture, req.Confidence, req.RawPayload, req.RecognizedText, timeOrZero(req.Timestamp))
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ingestStatusRequest is the request body for POST /ingest/device-status.
type ingestStatusRequest struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// handleIngestDeviceStatus accepts a device status report over HTTP.
func (s *Server) handleIngestDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req ingestStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeBadRequest(w, "device_id is required")
		return
	}

	if err := s.devices.ReportStatus(r.Context(), req.DeviceID, device.Status(req.Status)); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidStatus):
			writeBadRequest(w, "invalid device status")
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		default:
			writeInternalError(w, "status update failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeIngestError maps ingest pipeline errors onto HTTP responses.
func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, telemetry.ErrInvalidKind):
		writeBadRequest(w, "invalid sensor kind")
	case errors.Is(err, telemetry.ErrInvalidGesture):
		writeBadRequest(w, "gesture is required")
	case errors.Is(err, telemetry.ErrConfidenceRange):
		writeBadRequest(w, "confidence must be between 0 and 1")
	case errors.Is(err, binding.ErrDeviceUnbound):
		writeConflict(w, "device has no active binding")
	default:
		writeInternalError(w, "ingest failed")
	}
}

// timeOrZero dereferences an optional timestamp. The zero time tells the
// ingest pipeline to stamp the event with the arrival time.
func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
