package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Glove Link MQTT scheme.
//
// Telemetry topics use the flat scheme: glovelink/telemetry/{device_id}/{channel}
// where channel is one of sensor, gesture, status. The device id is the
// hardware identifier the glove reports, not a registry row id.
const (
	// TopicPrefix is the base for all Glove Link topics.
	TopicPrefix = "glovelink"

	// TopicPrefixTelemetry is the base for device telemetry topics.
	TopicPrefixTelemetry = "glovelink/telemetry"

	// TopicPrefixCore is the base for core-published topics.
	TopicPrefixCore = "glovelink/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "glovelink/system"
)

// Telemetry channels under TopicPrefixTelemetry.
const (
	ChannelSensor  = "sensor"
	ChannelGesture = "gesture"
	ChannelStatus  = "status"
)

// Topics provides builders for Glove Link MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	sensorTopic := topics.TelemetrySensor("GLV-0001")
//	// Returns: "glovelink/telemetry/GLV-0001/sensor"
type Topics struct{}

// =============================================================================
// Telemetry Topics (published by gloves and the edge gateway)
// =============================================================================

// TelemetrySensor returns the topic a glove publishes raw sensor readings on.
//
// Example: glovelink/telemetry/GLV-0001/sensor
func (Topics) TelemetrySensor(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTelemetry, deviceID, ChannelSensor)
}

// TelemetryGesture returns the topic gesture recognition results arrive on.
//
// Example: glovelink/telemetry/GLV-0001/gesture
func (Topics) TelemetryGesture(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTelemetry, deviceID, ChannelGesture)
}

// TelemetryStatus returns the topic a glove reports lifecycle status on.
//
// Example: glovelink/telemetry/GLV-0001/status
func (Topics) TelemetryStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixTelemetry, deviceID, ChannelStatus)
}

// =============================================================================
// Core Topics (published by the core after processing)
// =============================================================================

// CoreGestureResult returns the topic the core republishes accepted
// gesture results on, after owner attribution.
//
// Example: glovelink/core/gesture/GLV-0001
func (Topics) CoreGestureResult(deviceID string) string {
	return fmt.Sprintf("%s/gesture/%s", TopicPrefixCore, deviceID)
}

// CoreBindingChanged returns the topic for binding lifecycle events.
//
// Example: glovelink/core/binding/GLV-0001
func (Topics) CoreBindingChanged(deviceID string) string {
	return fmt.Sprintf("%s/binding/%s", TopicPrefixCore, deviceID)
}

// CoreEvent returns the topic for system events.
//
// Example: glovelink/core/event/device_status_changed
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: glovelink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: glovelink/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSensorTelemetry returns a pattern matching sensor readings from all gloves.
//
// Pattern: glovelink/telemetry/+/sensor
func (Topics) AllSensorTelemetry() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixTelemetry, ChannelSensor)
}

// AllGestureTelemetry returns a pattern matching gesture results from all gloves.
//
// Pattern: glovelink/telemetry/+/gesture
func (Topics) AllGestureTelemetry() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixTelemetry, ChannelGesture)
}

// AllStatusTelemetry returns a pattern matching status reports from all gloves.
//
// Pattern: glovelink/telemetry/+/status
func (Topics) AllStatusTelemetry() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixTelemetry, ChannelStatus)
}

// AllTopics returns a pattern matching all Glove Link topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: glovelink/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseTelemetryTopic extracts the device id and channel from a telemetry
// topic. Returns ok = false for topics outside the telemetry prefix.
func ParseTelemetryTopic(topic string) (deviceID, channel string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixTelemetry+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
