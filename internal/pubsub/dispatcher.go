package pubsub

import (
	"sync"
)

// Dispatcher delivers events to the registered handlers strictly in the
// order they were dispatched.
//
// Events are appended to an unbounded FIFO queue and drained by a single
// goroutine, so Dispatch never blocks the caller (typically a transport
// callback holding the client lock). Handler panics are recovered and
// logged; handler errors are logged. Neither affects later deliveries.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Close must not be called from within a handler.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	done   chan struct{}

	handlerMu   sync.RWMutex
	onMessage   MessageHandler
	onLifecycle LifecycleHandler

	logger Logger
}

// NewDispatcher creates a Dispatcher and starts its delivery goroutine.
// A nil logger discards log output.
func NewDispatcher(logger Logger) *Dispatcher {
	if logger == nil {
		logger = nopLogger{}
	}
	d := &Dispatcher{
		done:   make(chan struct{}),
		logger: logger,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// SetMessageHandler registers the handler for EventMessage events.
// The last registration wins; nil removes the handler.
func (d *Dispatcher) SetMessageHandler(handler MessageHandler) {
	d.handlerMu.Lock()
	d.onMessage = handler
	d.handlerMu.Unlock()
}

// SetLifecycleHandler registers the handler for all other events.
// The last registration wins; nil removes the handler.
func (d *Dispatcher) SetLifecycleHandler(handler LifecycleHandler) {
	d.handlerMu.Lock()
	d.onLifecycle = handler
	d.handlerMu.Unlock()
}

// Dispatch queues ev for delivery. It reports false if the dispatcher is closed.
func (d *Dispatcher) Dispatch(ev Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, ev)
	d.cond.Signal()
	return true
}

// Close stops accepting events, delivers everything already queued and
// waits for the delivery goroutine to exit. It is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Broadcast()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue[0] = Event{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(ev)
	}
}

// deliver invokes the matching handler with panic recovery.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic recovered",
				"event", ev.Kind.String(),
				"topic", ev.Topic,
				"panic", r,
			)
		}
	}()

	d.handlerMu.RLock()
	onMessage, onLifecycle := d.onMessage, d.onLifecycle
	d.handlerMu.RUnlock()

	if ev.Kind == EventMessage {
		if onMessage == nil {
			d.logger.Debug("message dropped, no handler registered", "topic", ev.Topic)
			return
		}
		msg := Message{Topic: ev.Topic, Payload: ev.Payload, ReceivedAt: ev.At}
		if err := onMessage(msg); err != nil {
			d.logger.Warn("message handler returned error",
				"topic", ev.Topic,
				"error", err,
			)
		}
		return
	}

	if onLifecycle != nil {
		onLifecycle(ev)
	}
}
