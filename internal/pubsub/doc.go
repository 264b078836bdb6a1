// Package pubsub is the client-side core of a topic pub/sub session.
//
// This package manages:
//   - The connection lifecycle state machine (Disconnected, Connecting,
//     Connected, Disconnecting) with no automatic reconnect
//   - Desired vs confirmed topic subscriptions, replayed after every Up
//   - Pending subscribe/unsubscribe operations matched by correlation key,
//     with a bounded acknowledgment timeout
//   - Ordered delivery of messages and lifecycle events to single handlers
//
// The broker protocol is behind the Transport interface; see
// internal/infrastructure/mqtt for the MQTT implementation.
//
// # Secure addresses
//
// For wss:// and https:// addresses Connect pauses after validation and
// emits EventTrustRequired. Whoever provisions trust (internal/trust) calls
// TrustReady to continue, or AbortTrust to fail the attempt.
//
// # Retry policy
//
// None. A failed connect, dropped connection, rejected or timed-out
// subscription is reported once as an event; retrying is the caller's call.
//
// # Usage
//
//	client := pubsub.New(transport, pubsub.Options{Logger: log})
//	defer client.Close()
//
//	client.OnMessage(func(msg pubsub.Message) error {
//	    log.Info("received", "topic", msg.Topic, "bytes", len(msg.Payload))
//	    return nil
//	})
//	client.OnLifecycleEvent(func(ev pubsub.Event) {
//	    log.Info("lifecycle", "event", ev.Kind.String(), "topic", ev.Topic)
//	})
//
//	_ = client.Subscribe("prices/eur", "prices/usd") // deferred until Up
//	if err := client.Connect(cfg); err != nil {
//	    return err
//	}
package pubsub
