package mqtt

import (
	"context"
	"fmt"
	"slices"

	"github.com/eclipse/paho.golang/paho"
	"github.com/goccy/go-json"

	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic at the configured QoS.
//
// Strings and byte slices are sent as-is; anything else is JSON encoded.
// While the client is not connected Publish does nothing and returns nil:
// callers must not rely on delivery.
//
// Example:
//
//	err := client.Publish(ctx, mqtt.Topics{}.Room(5), FanSpeedCommand{FanSpeed: 40})
func (c *Client) Publish(ctx context.Context, topic string, payload any) error {
	return c.PublishWithProperties(ctx, topic, payload, nil)
}

// PublishWithProperties is Publish with MQTT v5 user properties attached.
// Properties are sent in key order.
func (c *Client) PublishWithProperties(ctx context.Context, topic string, payload any, props map[string]string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	body, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	if len(body) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(body), maxPayloadSize)
	}

	c.stateMu.RLock()
	connected, conn := c.state == StateConnected, c.conn
	c.stateMu.RUnlock()
	if !connected || conn == nil {
		metrics.Publishes.WithLabelValues("skipped").Inc()
		c.logger.Debug("mqtt publish skipped while disconnected", "topic", topic)
		return nil
	}

	pub := &paho.Publish{
		QoS:     c.opts.QoS,
		Topic:   topic,
		Payload: body,
	}
	if len(props) > 0 {
		pub.Properties = &paho.PublishProperties{User: userProperties(props)}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	if _, err := conn.Publish(ctx, pub); err != nil {
		metrics.Publishes.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	metrics.Publishes.WithLabelValues("sent").Inc()
	return nil
}

// encodePayload produces the wire bytes for a payload.
func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func userProperties(props map[string]string) paho.UserProperties {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make(paho.UserProperties, 0, len(keys))
	for _, k := range keys {
		out = append(out, paho.UserProperty{Key: k, Value: props[k]})
	}
	return out
}
