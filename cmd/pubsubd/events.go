package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/logging"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/journal"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// journalWriteTimeout bounds one journal insert.
const journalWriteTimeout = 5 * time.Second

// errShuttingDown aborts a paused connect once provisioning can no longer start.
var errShuttingDown = errors.New("daemon shutting down")

// eventSink receives every client event. Implemented by the InfluxDB client.
type eventSink interface {
	WriteEvent(ev pubsub.Event)
}

// relay pushes events to WebSocket clients. Implemented by the API server.
type relay interface {
	Relay(ev pubsub.Event)
}

// trustee is resumed or aborted when trust provisioning cannot be started.
type trustee interface {
	AbortTrust(reason error) error
}

// eventRouter fans client events out to the log, journal, telemetry and relay,
// and starts trust provisioning when a secure connect pauses.
//
// Its handlers run on the client's dispatcher goroutine, so every sink sees
// events in emission order.
type eventRouter struct {
	ctx       context.Context
	log       *logging.Logger
	journal   journal.Repository // optional
	telemetry eventSink          // optional
	relay     relay              // optional
	trust     func(address string) bool // false when provisioning was refused
	trustee   trustee
}

// trustRunner runs provisioning in goroutines that stop() waits for.
// Once stopped it refuses new work, so no goroutine is added during the wait.
type trustRunner struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
}

// start runs fn in a new goroutine unless the runner is stopped.
func (t *trustRunner) start(fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
	return true
}

// stop refuses further work and waits for running provisioning to finish.
func (t *trustRunner) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.wg.Wait()
}

// handleLifecycle is the client's LifecycleHandler.
func (r *eventRouter) handleLifecycle(ev pubsub.Event) {
	r.logEvent(ev)

	if r.journal != nil {
		if entry, ok := journal.FromEvent(ev); ok {
			ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
			if err := r.journal.Create(ctx, &entry); err != nil {
				r.log.Error("journal write failed", "kind", entry.Kind, "error", err)
			}
			cancel()
		}
	}
	if r.telemetry != nil {
		r.telemetry.WriteEvent(ev)
	}
	if r.relay != nil {
		r.relay.Relay(ev)
	}

	if ev.Kind == pubsub.EventTrustRequired {
		r.startTrust(ev.Address)
	}
}

// handleMessage is the client's MessageHandler.
func (r *eventRouter) handleMessage(msg pubsub.Message) error {
	ev := pubsub.Event{
		Kind:    pubsub.EventMessage,
		Topic:   msg.Topic,
		Payload: msg.Payload,
		At:      msg.ReceivedAt,
	}
	if r.telemetry != nil {
		r.telemetry.WriteEvent(ev)
	}
	if r.relay != nil {
		r.relay.Relay(ev)
	}
	return nil
}

// startTrust provisions trust for address, or releases the paused connect
// when the daemon is shutting down.
func (r *eventRouter) startTrust(address string) {
	reason := r.ctx.Err()
	if reason == nil && !r.trust(address) {
		reason = errShuttingDown
	}
	if reason != nil {
		//nolint:errcheck // The attempt may already be gone
		r.trustee.AbortTrust(reason)
	}
}

func (r *eventRouter) logEvent(ev pubsub.Event) {
	args := []any{"event", ev.Kind.String()}
	if ev.Topic != "" {
		args = append(args, "topic", ev.Topic)
	}
	if ev.Address != "" {
		args = append(args, "address", ev.Address)
	}
	if ev.Err != nil {
		args = append(args, "error", ev.Err)
	}

	switch ev.Kind {
	case pubsub.EventConnectFailed, pubsub.EventSubscriptionFailed, pubsub.EventUnsubscribeFailed:
		r.log.Warn("pub/sub event", args...)
	case pubsub.EventDisconnected:
		if ev.Err != nil {
			r.log.Warn("pub/sub event", args...)
			return
		}
		r.log.Info("pub/sub event", args...)
	default:
		r.log.Info("pub/sub event", args...)
	}
}
