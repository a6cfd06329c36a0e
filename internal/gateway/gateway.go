package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/glovelink/glove-core/internal/binding"
	"github.com/glovelink/glove-core/internal/device"
	"github.com/glovelink/glove-core/internal/infrastructure/logging"
	"github.com/glovelink/glove-core/internal/infrastructure/mqtt"
	"github.com/glovelink/glove-core/internal/telemetry"
)

// MQTTClient is the broker surface the gateway needs.
// Satisfied by *mqtt.Client; narrowed for mocking in tests.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// TelemetryIngester accepts decoded telemetry. Satisfied by
// *telemetry.Service.
type TelemetryIngester interface {
	IngestSensorEvent(ctx context.Context, deviceID string, kind telemetry.SensorKind, position string, payload json.RawMessage, timestamp time.Time) (*telemetry.SensorEvent, error)
	IngestGestureResult(ctx context.Context, deviceID, gesture string, confidence float64, rawPayload json.RawMessage, recognizedText string, recognitionTime time.Time) (*telemetry.GestureResult, error)
}

// DeviceStatusReporter applies glove status reports. Satisfied by
// *device.Service.
type DeviceStatusReporter interface {
	ReportStatus(ctx context.Context, deviceID string, status device.Status) error
}

// Gateway bridges the MQTT ingest feed into the telemetry core.
//
// It subscribes to the glovelink/telemetry/+/{sensor,gesture,status}
// channels, decodes each message, and hands it to the ingest services.
// Accepted gesture results are republished under glovelink/core/gesture/
// for downstream consumers.
//
// Messages from unbound devices are dropped after logging: the broker has
// already acknowledged them, and the upstream publisher decides whether
// to resend once a binding exists.
type Gateway struct {
	client  MQTTClient
	ingest  TelemetryIngester
	devices DeviceStatusReporter
	qos     byte
	logger  *logging.Logger

	processed atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a gateway. Start must be called to begin consuming.
func New(client MQTTClient, ingest TelemetryIngester, devices DeviceStatusReporter, qos byte, logger *logging.Logger) *Gateway {
	return &Gateway{
		client:  client,
		ingest:  ingest,
		devices: devices,
		qos:     qos,
		logger:  logger.With("component", "gateway"),
	}
}

// Start subscribes to the telemetry channels. The context bounds the
// ingest calls made by message handlers.
func (g *Gateway) Start(ctx context.Context) error {
	topics := mqtt.Topics{}

	if err := g.client.Subscribe(topics.AllSensorTelemetry(), g.qos, func(topic string, payload []byte) error {
		return g.handleSensor(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to sensor telemetry: %w", err)
	}

	if err := g.client.Subscribe(topics.AllGestureTelemetry(), g.qos, func(topic string, payload []byte) error {
		return g.handleGesture(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to gesture telemetry: %w", err)
	}

	if err := g.client.Subscribe(topics.AllStatusTelemetry(), g.qos, func(topic string, payload []byte) error {
		return g.handleStatus(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to status telemetry: %w", err)
	}

	g.logger.Info("gateway started",
		"sensor_topic", topics.AllSensorTelemetry(),
		"gesture_topic", topics.AllGestureTelemetry(),
		"status_topic", topics.AllStatusTelemetry(),
	)
	return nil
}

// Processed returns the number of messages accepted since start.
func (g *Gateway) Processed() uint64 { return g.processed.Load() }

// Rejected returns the number of messages dropped since start.
func (g *Gateway) Rejected() uint64 { return g.rejected.Load() }

func (g *Gateway) handleSensor(ctx context.Context, topic string, payload []byte) error {
	deviceID, _, ok := mqtt.ParseTelemetryTopic(topic)
	if !ok {
		g.rejected.Add(1)
		return fmt.Errorf("malformed telemetry topic %q", topic)
	}

	var msg SensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		g.rejected.Add(1)
		return fmt.Errorf("decoding sensor message from %s: %w", deviceID, err)
	}

	_, err := g.ingest.IngestSensorEvent(ctx, deviceID, telemetry.SensorKind(msg.Kind), msg.Position, msg.Payload, timeOrZero(msg.Timestamp))
	if err != nil {
		g.rejected.Add(1)
		if errors.Is(err, binding.ErrDeviceUnbound) {
			g.logger.Warn("dropping sensor event from unbound device", "device_id", deviceID)
			return nil
		}
		return fmt.Errorf("ingesting sensor event from %s: %w", deviceID, err)
	}

	g.processed.Add(1)
	return nil
}

func (g *Gateway) handleGesture(ctx context.Context, topic string, payload []byte) error {
	deviceID, _, ok := mqtt.ParseTelemetryTopic(topic)
	if !ok {
		g.rejected.Add(1)
		return fmt.Errorf("malformed telemetry topic %q", topic)
	}

	var msg GestureMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		g.rejected.Add(1)
		return fmt.Errorf("decoding gesture message from %s: %w", deviceID, err)
	}

	result, err := g.ingest.IngestGestureResult(ctx, deviceID, msg.Gesture, msg.Confidence, msg.RawPayload, msg.RecognizedText, timeOrZero(msg.Timestamp))
	if err != nil {
		g.rejected.Add(1)
		if errors.Is(err, binding.ErrDeviceUnbound) {
			g.logger.Warn("dropping gesture result from unbound device", "device_id", deviceID)
			return nil
		}
		return fmt.Errorf("ingesting gesture result from %s: %w", deviceID, err)
	}

	g.processed.Add(1)
	g.republishGesture(result)
	return nil
}

func (g *Gateway) handleStatus(ctx context.Context, topic string, payload []byte) error {
	deviceID, _, ok := mqtt.ParseTelemetryTopic(topic)
	if !ok {
		g.rejected.Add(1)
		return fmt.Errorf("malformed telemetry topic %q", topic)
	}

	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		g.rejected.Add(1)
		return fmt.Errorf("decoding status message from %s: %w", deviceID, err)
	}

	if err := g.devices.ReportStatus(ctx, deviceID, device.Status(msg.Status)); err != nil {
		g.rejected.Add(1)
		return fmt.Errorf("applying status report from %s: %w", deviceID, err)
	}

	g.processed.Add(1)
	return nil
}

// republishGesture publishes the attributed result for downstream
// consumers. Failure here is logged only; the result is already durable.
func (g *Gateway) republishGesture(result *telemetry.GestureResult) {
	accepted := AcceptedGesture{
		ID:             result.ID,
		DeviceID:       result.DeviceID,
		UserID:         result.UserID,
		Gesture:        result.Gesture,
		Confidence:     result.Confidence,
		RecognizedText: result.RecognizedText,
		Timestamp:      result.Timestamp.Format(time.RFC3339),
	}

	payload, err := json.Marshal(accepted)
	if err != nil {
		g.logger.Error("encoding accepted gesture", "error", err)
		return
	}

	topic := mqtt.Topics{}.CoreGestureResult(result.DeviceID)
	if err := g.client.Publish(topic, payload, g.qos, false); err != nil {
		g.logger.Warn("republishing accepted gesture failed", "topic", topic, "error", err)
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
