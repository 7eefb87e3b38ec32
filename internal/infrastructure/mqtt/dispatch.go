package mqtt

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/airsense-core/internal/infrastructure/metrics"
)

// Message is an inbound bus message as seen by handlers.
type Message struct {
	Topic   string
	Payload []byte
	// Properties holds the MQTT v5 user properties. Later duplicates of a key win.
	Properties map[string]string
}

// Property returns the user property named key.
func (m Message) Property(key string) (string, bool) {
	v, ok := m.Properties[key]
	return v, ok
}

// MessageHandler processes one message. Handlers run on their own goroutine;
// a returned error or panic is logged and never reaches the transport.
// ctx is cancelled if Stop abandons the handler.
type MessageHandler func(ctx context.Context, msg Message) error

// binding pairs a filter with its handler for one dispatch.
type binding struct {
	filter  string
	handler MessageHandler
}

// Register binds handler to filter. Registering the same literal filter again
// replaces the previous handler. If the client is connected the filter is
// subscribed immediately; otherwise it is subscribed on the next connect.
//
// Example:
//
//	err := client.Register(mqtt.Topics{}.AllSensors(),
//	    func(ctx context.Context, msg mqtt.Message) error {
//	        log.Printf("received %s = %s", msg.Topic, msg.Payload)
//	        return nil
//	    })
func (c *Client) Register(filter string, handler MessageHandler) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return ErrInvalidHandler
	}

	c.bindMu.Lock()
	_, replaced := c.bindings[filter]
	c.bindings[filter] = handler
	c.bindMu.Unlock()

	if replaced {
		c.logger.Debug("mqtt handler replaced", "filter", filter)
		return nil
	}

	c.stateMu.RLock()
	connected, conn := c.state == StateConnected, c.conn
	c.stateMu.RUnlock()
	if !connected {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSubscribeTimeout)
	defer cancel()
	return c.subscribe(ctx, conn, filter)
}

// filters returns the registered filters in sorted order.
func (c *Client) filters() []string {
	c.bindMu.RLock()
	defer c.bindMu.RUnlock()

	out := make([]string, 0, len(c.bindings))
	for f := range c.bindings {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// matching snapshots the bindings whose filter matches topic.
func (c *Client) matching(topic string) []binding {
	c.bindMu.RLock()
	defer c.bindMu.RUnlock()

	var out []binding
	for f, h := range c.bindings {
		if Match(f, topic) {
			out = append(out, binding{filter: f, handler: h})
		}
	}
	return out
}

// subscribe sends one SUBSCRIBE covering filters at the configured QoS.
func (c *Client) subscribe(ctx context.Context, conn connection, filters ...string) error {
	if len(filters) == 0 {
		return nil
	}

	subs := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		subs = append(subs, paho.SubscribeOptions{Topic: f, QoS: c.opts.QoS})
	}

	suback, err := conn.Subscribe(ctx, &paho.Subscribe{Subscriptions: subs})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	for i, code := range suback.Reasons {
		// Reason codes >= 0x80 are failures; 0..2 are the granted QoS.
		if code >= 0x80 && i < len(filters) {
			return fmt.Errorf("%w: %s rejected with reason code %d", ErrSubscribeFailed, filters[i], code)
		}
	}
	c.logger.Debug("mqtt subscribed", "filters", filters)
	return nil
}

// onPublishReceived is the autopaho receive callback. It returns immediately;
// matching handlers continue on their own goroutines.
func (c *Client) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	if pr.Packet == nil {
		return false, nil
	}
	return c.dispatch(messageFromPacket(pr.Packet)) > 0, nil
}

// dispatch starts every matching handler and returns how many were started.
func (c *Client) dispatch(msg Message) int {
	bindings := c.matching(msg.Topic)
	if len(bindings) == 0 {
		metrics.BusMessages.WithLabelValues("unmatched").Inc()
		c.logger.Debug("mqtt message without handler", "topic", msg.Topic)
		return 0
	}

	c.inflightMu.Lock()
	if c.stopping {
		c.inflightMu.Unlock()
		return 0
	}
	c.inflight.Add(len(bindings))
	ctx := c.handlerCtx
	c.inflightMu.Unlock()

	metrics.BusMessages.WithLabelValues("matched").Inc()
	for _, b := range bindings {
		own := msg
		own.Payload = bytes.Clone(msg.Payload)
		go func() {
			defer c.inflight.Done()
			c.invoke(ctx, b, own)
		}()
	}
	return len(bindings)
}

// invoke runs one handler with panic recovery and logging.
func (c *Client) invoke(ctx context.Context, b binding, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerFailures.WithLabelValues(b.filter, "panic").Inc()
			c.logger.Error("mqtt handler panic recovered",
				"filter", b.filter,
				"topic", msg.Topic,
				"panic", r,
			)
		}
	}()

	if err := b.handler(ctx, msg); err != nil {
		metrics.HandlerFailures.WithLabelValues(b.filter, "error").Inc()
		c.logger.Warn("mqtt handler returned error",
			"filter", b.filter,
			"topic", msg.Topic,
			"error", err,
		)
	}
}

func messageFromPacket(p *paho.Publish) Message {
	msg := Message{Topic: p.Topic, Payload: p.Payload}
	if p.Properties != nil && len(p.Properties.User) > 0 {
		msg.Properties = make(map[string]string, len(p.Properties.User))
		for _, up := range p.Properties.User {
			msg.Properties[up.Key] = up.Value
		}
	}
	return msg
}
