// Package mqtt implements the pubsub.Transport over MQTT using
// paho.mqtt.golang, carried on WebSocket.
//
// This package manages:
//   - Mapping client addresses onto paho broker URLs (http→ws, https→wss)
//   - One paho client per connection attempt, with a fresh client ID
//   - SUBSCRIBE/UNSUBSCRIBE frames whose acknowledgments are reported
//     asynchronously to the client's sink, keyed by correlation key
//   - Inbound messages and connection loss reported to the same sink
//   - Scoping topics under the session namespace
//
// # Reconnection
//
// paho's auto-reconnect and connect-retry are disabled. A lost connection
// is reported once as pubsub.InboundClosed; the client decides what to do.
//
// # Ordering
//
// Messages are delivered through paho's default publish handler with
// OrderMatters set, so the sink sees them in arrival order.
//
// # Security Considerations
//
//   - wss:// (and https://) connections use TLS 1.2 or later
//   - Credentials come from the session config and are never logged
//
// # Usage
//
//	transport, err := mqtt.NewTransport(mqtt.Options{QoS: 1}, logger)
//	if err != nil {
//	    return err
//	}
//	client := pubsub.New(transport, pubsub.Options{Logger: logger})
package mqtt
