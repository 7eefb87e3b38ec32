package notify

import "errors"

var (
	// ErrDeliveryFailed is returned when no token in a batch received the message.
	ErrDeliveryFailed = errors.New("notify: delivery failed")

	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("notify: push service unavailable")
)
