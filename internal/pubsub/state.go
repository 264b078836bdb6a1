package pubsub

// ConnectionState is the lifecycle state of a Client's single connection.
//
// Transitions:
//
//	Disconnected →(Connect)→ Connecting →(transport open)→ Connected
//	Connected →(Disconnect)→ Disconnecting →(transport closed)→ Disconnected
//	Connecting →(open failed / Disconnect / AbortTrust)→ Disconnected
//	Connected →(transport dropped)→ Disconnected
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the lowercase state name used in logs and the status API.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}
