// Package gateway consumes glove telemetry from the MQTT broker and
// feeds it into the core ingest services.
//
// Gloves (via their edge gateway) publish on three channels per device:
//
//	glovelink/telemetry/{device_id}/sensor   raw sensor readings
//	glovelink/telemetry/{device_id}/gesture  recognition results
//	glovelink/telemetry/{device_id}/status   lifecycle status reports
//
// The gateway decodes each message, resolves it through the telemetry
// service (which enforces binding attribution), and republishes accepted
// gesture results on glovelink/core/gesture/{device_id}.
package gateway
