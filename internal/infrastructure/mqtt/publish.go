package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outbound payloads at 1MB, in line with common
// broker limits. Glove telemetry frames are far smaller.
const maxPayloadSize = 1 << 20

// Publish sends a payload to a topic and waits for broker
// acknowledgement per the QoS level.
//
// Retained messages are for state topics (system status, device
// status) where a late subscriber should see the current value; events
// and telemetry are published unretained.
//
// Parameters:
//   - topic: Destination topic (e.g. "glovelink/core/gesture/GLV-0001")
//   - payload: Message payload, JSON in this system, max 1MB
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS. For state topics only.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
