package pubsub

import (
	"errors"
	"fmt"
)

// Domain-specific errors for the pub/sub client core.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConfig is returned by Connect when a required field is missing
	// or the address scheme is unsupported. No I/O has been attempted.
	ErrInvalidConfig = errors.New("pubsub: invalid config")

	// ErrInvalidTopic is returned when an empty topic name is supplied.
	ErrInvalidTopic = errors.New("pubsub: topic cannot be empty")

	// ErrAlreadyConnected is returned by Connect unless the client is Disconnected.
	ErrAlreadyConnected = errors.New("pubsub: already connected")

	// ErrNotConnected is returned by Disconnect when the client is Disconnected.
	ErrNotConnected = errors.New("pubsub: not connected")

	// ErrTransport wraps failures reported by the Transport (open, send, close, drop).
	ErrTransport = errors.New("pubsub: transport error")

	// ErrSubscriptionFailed wraps the cause carried by SubscriptionFailed and
	// UnsubscribeFailed events.
	ErrSubscriptionFailed = errors.New("pubsub: subscription failed")

	// ErrTimedOut is the cause of a pending operation that was not acknowledged in time.
	ErrTimedOut = errors.New("pubsub: operation timed out")

	// ErrNoTrustPending is returned by TrustReady/AbortTrust when the client
	// is not paused waiting for trust provisioning.
	ErrNoTrustPending = errors.New("pubsub: no trust provisioning pending")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("pubsub: client closed")
)

// transportError wraps err with ErrTransport. A nil err yields ErrTransport itself.
func transportError(err error) error {
	if err == nil {
		return ErrTransport
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// subscriptionError wraps cause with ErrSubscriptionFailed.
func subscriptionError(cause error) error {
	if cause == nil {
		return ErrSubscriptionFailed
	}
	return fmt.Errorf("%w: %w", ErrSubscriptionFailed, cause)
}
