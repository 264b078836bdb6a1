package pubsub

import "context"

// FrameKind identifies an outbound request.
type FrameKind int

const (
	FrameSubscribe FrameKind = iota + 1
	FrameUnsubscribe
)

// Frame is an outbound request handed to Conn.Send. The transport echoes
// CorrelationKey back in the matching InboundAck or InboundNack.
type Frame struct {
	Kind           FrameKind
	Topic          string
	CorrelationKey string
}

// InboundKind identifies an event reported by the transport.
type InboundKind int

const (
	// InboundAck acknowledges the frame with CorrelationKey.
	InboundAck InboundKind = iota + 1

	// InboundNack rejects the frame with CorrelationKey; Err holds the reason.
	InboundNack

	// InboundMessage carries a message received on Topic.
	InboundMessage

	// InboundClosed reports that the connection was lost; Err holds the reason.
	InboundClosed
)

// Inbound is an event pushed by the transport into a Sink.
type Inbound struct {
	Kind           InboundKind
	CorrelationKey string
	Topic          string
	Payload        []byte
	Err            error
}

// Sink receives inbound events for one connection. It is safe to call from
// any goroutine, but must not be called synchronously from within Conn.Send.
type Sink func(in Inbound)

// Transport opens broker connections. The wire protocol, framing and
// authentication are entirely the transport's concern.
type Transport interface {
	// Open connects to the broker described by cfg and returns once the
	// session is established or has failed. ctx is cancelled if the client
	// abandons the attempt; it does not govern the lifetime of the returned Conn.
	Open(ctx context.Context, cfg Config, sink Sink) (Conn, error)
}

// Conn is an open broker connection.
type Conn interface {
	// Send queues frame for transmission without waiting for acknowledgment.
	Send(frame Frame) error

	// Close tears the connection down. No InboundClosed is expected afterwards.
	Close() error
}
