package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names used by the telemetry mirror.
const (
	measurementGestureResults = "gesture_results"
	measurementSensorEvents   = "sensor_events"
	measurementDeviceStatus   = "device_status"
)

// WriteGestureMetric records a gesture recognition confidence score.
// The write is batched and non-blocking.
//
// Parameters:
//   - deviceID: Hardware identifier of the glove (e.g., "GLV-0001")
//   - userID: Owner the result was attributed to
//   - gesture: Recognised gesture label
//   - confidence: Recognition confidence in [0, 1]
func (c *Client) WriteGestureMetric(deviceID, userID, gesture string, confidence float64) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementGestureResults,
		map[string]string{
			"device_id": deviceID,
			"user_id":   userID,
			"gesture":   gesture,
		},
		map[string]interface{}{"confidence": confidence},
		time.Now(),
	))
}

// WriteSensorMetric records one raw sensor reading as a countable event.
// The structured payload stays in SQLite; the mirror only needs enough
// tags to graph ingest rates per glove channel.
//
// Parameters:
//   - deviceID: Hardware identifier of the glove
//   - userID: Owner the reading was attributed to
//   - kind: Sensor kind (flex, strain, imu)
//   - position: Optional position label (e.g., "index_tip")
func (c *Client) WriteSensorMetric(deviceID, userID, kind, position string) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
		"user_id":   userID,
		"kind":      kind,
	}
	if position != "" {
		tags["position"] = position
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementSensorEvents,
		tags,
		map[string]interface{}{"count": 1},
		time.Now(),
	))
}

// WriteDeviceStatus records a device connectivity transition.
//
// Parameters:
//   - deviceID: Hardware identifier of the glove
//   - status: New status (online, offline, maintenance)
func (c *Client) WriteDeviceStatus(deviceID, status string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementDeviceStatus,
		map[string]string{"device_id": deviceID},
		map[string]interface{}{"status": status},
		time.Now(),
	))
}
