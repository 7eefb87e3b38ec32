package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned by HealthCheck while the bus is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrAlreadyStarted is returned when Start is called twice without Stop.
	ErrAlreadyStarted = errors.New("mqtt: client already started")

	// ErrConnectionFailed is returned when the initial connection does not come up.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a connected publish is rejected or times out.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the broker rejects a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic or filter is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidHandler is returned when registering a nil handler.
	ErrInvalidHandler = errors.New("mqtt: handler cannot be nil")
)
