package mqtt

import (
	"context"
	"fmt"
)

// maxPayloadSize caps outbound messages at 1MB, matching common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends a message and waits up to the default publish timeout for
// the broker acknowledgement.
//
// Parameters:
//   - topic: Destination topic, e.g. topics.Request(ActionPublishDPs)
//   - payload: Message body, at most 1MB
//   - qos: 0 (at most once), 1 (at least once) or 2 (exactly once)
//   - retained: Whether the broker keeps the message for late subscribers
//
// Returns:
//   - error: nil once acknowledged, ErrNotConnected, or ErrPublishFailed
//
// Example:
//
//	body, _ := json.Marshal(req)
//	err := client.Publish(topics.Request(ActionActivateBLE), body, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return c.PublishContext(context.Background(), topic, payload, qos, retained)
}

// PublishContext is Publish bounded additionally by ctx. The provider
// client uses it so a cancelled HTTP request stops waiting on the broker.
func (c *Client) PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	// Validate before touching the connection
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Wait for the ack, the publish timeout or ctx, whichever comes first
	token := c.client.Publish(topic, qos, retained, payload)
	return waitToken(ctx, token, defaultPublishTimeout, ErrPublishFailed)
}

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// QoS returns the configured default QoS level.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}
