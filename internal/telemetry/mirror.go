package telemetry

import (
	"github.com/glovelink/glove-core/internal/infrastructure/influxdb"
)

// InfluxMirror exports ingested telemetry to InfluxDB. It satisfies
// Mirror; the underlying writes are batched and non-blocking, so ingest
// latency is unaffected even when the time-series store is slow.
type InfluxMirror struct {
	client *influxdb.Client
}

// NewInfluxMirror wraps a connected InfluxDB client as a telemetry mirror.
func NewInfluxMirror(client *influxdb.Client) *InfluxMirror {
	return &InfluxMirror{client: client}
}

// MirrorSensorEvent records the reading as a countable point tagged by
// kind and position.
func (m *InfluxMirror) MirrorSensorEvent(event *SensorEvent) {
	m.client.WriteSensorMetric(event.DeviceID, event.UserID, string(event.Kind), event.Position)
}

// MirrorGestureResult records the recognition confidence score.
func (m *InfluxMirror) MirrorGestureResult(result *GestureResult) {
	m.client.WriteGestureMetric(result.DeviceID, result.UserID, result.Gesture, result.Confidence)
}

// MirrorDeviceStatus records a connectivity transition. Also satisfies
// device.StatusMirror.
func (m *InfluxMirror) MirrorDeviceStatus(deviceID, status string) {
	m.client.WriteDeviceStatus(deviceID, status)
}
