package mqtt

import "errors"

// Domain-specific errors for the MQTT transport.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a frame is sent on a closed session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost wraps the cause reported when an open session drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrSubscribeFailed is returned when the broker rejects a subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidAddress is returned when the broker address cannot be dialled.
	ErrInvalidAddress = errors.New("mqtt: invalid broker address")

	// ErrUnknownFrame is returned for a frame kind the transport cannot send.
	ErrUnknownFrame = errors.New("mqtt: unknown frame kind")
)
