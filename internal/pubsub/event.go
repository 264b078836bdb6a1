package pubsub

import "time"

// EventKind enumerates the events a Client emits.
type EventKind int

const (
	// EventUp is emitted once per successful connection.
	EventUp EventKind = iota + 1

	// EventConnectFailed carries the reason the connection attempt failed in Err.
	EventConnectFailed

	// EventDisconnected is emitted after Disconnect or a transport drop.
	// Err is set when the transport dropped the connection or failed to close.
	EventDisconnected

	// EventSubscriptionConfirmed is emitted when the broker acknowledges a subscribe.
	EventSubscriptionConfirmed

	// EventSubscriptionFailed is emitted when a subscribe was rejected or timed out.
	// The topic stays desired; retrying is up to the caller.
	EventSubscriptionFailed

	// EventMessage carries an inbound message. It is delivered to the
	// message handler, never to the lifecycle handler.
	EventMessage

	// EventTrustRequired is emitted when a secure address pauses the connect
	// sequence. Address holds the broker address to provision trust for.
	EventTrustRequired

	// EventUnsubscribed is emitted when the broker acknowledges an unsubscribe.
	EventUnsubscribed

	// EventUnsubscribeFailed is emitted when an unsubscribe was rejected or timed out.
	EventUnsubscribeFailed
)

// String returns the snake_case event name used in logs, the journal and the relay.
func (k EventKind) String() string {
	switch k {
	case EventUp:
		return "up"
	case EventConnectFailed:
		return "connect_failed"
	case EventDisconnected:
		return "disconnected"
	case EventSubscriptionConfirmed:
		return "subscription_confirmed"
	case EventSubscriptionFailed:
		return "subscription_failed"
	case EventMessage:
		return "message"
	case EventTrustRequired:
		return "trust_required"
	case EventUnsubscribed:
		return "unsubscribed"
	case EventUnsubscribeFailed:
		return "unsubscribe_failed"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification or inbound message.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	Address string
	Err     error
	At      time.Time
}

// Message is an inbound message handed to the MessageHandler.
// It is not retained after delivery.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// MessageHandler receives inbound messages in arrival order.
// A returned error is logged and does not affect later deliveries.
type MessageHandler func(msg Message) error

// LifecycleHandler receives every event except EventMessage, in emission order.
type LifecycleHandler func(ev Event)
