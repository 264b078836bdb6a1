package pubsub

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSweepInterval is how often pending operations are checked for expiry.
const DefaultSweepInterval = time.Second

// ConnectionManager owns the ConnectionState of one client and drives the
// connect/disconnect state machine.
//
// Every transition happens under mu, which is shared with the client and
// also guards the SubscriptionRegistry. Each connection attempt carries a
// generation number; transport callbacks and open results from a superseded
// attempt are discarded.
//
// There is no automatic reconnect: a failed open or dropped connection
// returns to Disconnected and the caller decides whether to retry.
type ConnectionManager struct {
	mu        *sync.Mutex
	transport Transport
	subs      *SubscriptionRegistry
	events    *Dispatcher
	logger    Logger
	sweep     time.Duration
	wg        sync.WaitGroup

	state         ConnectionState
	attempt       uint64
	cfg           Config
	conn          Conn
	cancelOpen    context.CancelFunc
	stopSweeper   context.CancelFunc
	awaitingTrust bool
	earlyDrop     error
	closed        bool

	// teardown is closed when the Disconnecting phase in progress ends.
	teardown chan struct{}
}

func newConnectionManager(mu *sync.Mutex, transport Transport, subs *SubscriptionRegistry, events *Dispatcher, sweep time.Duration, logger Logger) *ConnectionManager {
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	return &ConnectionManager{
		mu:        mu,
		transport: transport,
		subs:      subs,
		events:    events,
		logger:    logger,
		sweep:     sweep,
	}
}

// connect validates cfg and starts a connection attempt.
func (m *ConnectionManager) connect(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state != StateDisconnected {
		m.logger.Info("already connected, ignoring connect request", "state", m.state.String())
		return ErrAlreadyConnected
	}
	if err := cfg.Validate(); err != nil {
		m.logger.Warn("cannot connect", "error", err)
		return err
	}

	m.attempt++
	m.cfg = cfg
	m.earlyDrop = nil
	m.state = StateConnecting
	m.logger.Info("connecting to broker", "session", cfg)

	if cfg.RequiresTrust() {
		m.awaitingTrust = true
		m.logger.Info("waiting for trust provisioning", "address", cfg.Address)
		m.emit(Event{Kind: EventTrustRequired, Address: cfg.Address})
		return nil
	}

	m.startOpen()
	return nil
}

// trustReady resumes a connect sequence paused for trust provisioning.
func (m *ConnectionManager) trustReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting || !m.awaitingTrust {
		return ErrNoTrustPending
	}
	m.awaitingTrust = false
	m.logger.Info("trust provisioned, opening transport", "address", m.cfg.Address)
	m.startOpen()
	return nil
}

// abortTrust abandons a connect sequence paused for trust provisioning.
func (m *ConnectionManager) abortTrust(reason error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnecting || !m.awaitingTrust {
		return ErrNoTrustPending
	}
	m.awaitingTrust = false
	m.attempt++
	m.state = StateDisconnected
	if reason == nil {
		reason = errors.New("trust provisioning aborted")
	}
	m.logger.Warn("connection failed", "address", m.cfg.Address, "error", reason)
	m.emit(Event{Kind: EventConnectFailed, Address: m.cfg.Address, Err: reason})
	return nil
}

// startOpen opens the transport in the background. Caller holds mu.
func (m *ConnectionManager) startOpen() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelOpen = cancel
	attempt, cfg := m.attempt, m.cfg

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		conn, err := m.transport.Open(ctx, cfg, m.sink(attempt))
		m.opened(attempt, conn, err)
	}()
}

// opened completes a connection attempt with the transport's result.
func (m *ConnectionManager) opened(attempt uint64, conn Conn, err error) {
	m.mu.Lock()
	if attempt != m.attempt || m.state != StateConnecting {
		m.mu.Unlock()
		m.logger.Debug("discarding result of abandoned connection attempt")
		if conn != nil {
			_ = conn.Close() //nolint:errcheck // Abandoned attempt; nothing to report to
		}
		return
	}

	m.cancelOpen()
	m.cancelOpen = nil

	if err == nil && m.earlyDrop != nil {
		err = m.earlyDrop
	}
	m.earlyDrop = nil
	if err != nil {
		m.attempt++
		m.state = StateDisconnected
		m.logger.Warn("connection failed", "address", m.cfg.Address, "error", err)
		m.emit(Event{Kind: EventConnectFailed, Address: m.cfg.Address, Err: transportError(err)})
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close() //nolint:errcheck // Connection already reported as failed
		}
		return
	}

	m.conn = conn
	m.state = StateConnected
	m.logger.Info("connected to broker", "address", m.cfg.Address)

	// Frames go out before Up is observed; failures are reported after it.
	replayed := m.subs.Replay(conn)
	m.emit(Event{Kind: EventUp, Address: m.cfg.Address})
	m.emitAll(replayed)
	m.startSweeper(attempt)
	m.mu.Unlock()
}

// sink binds transport callbacks to one connection attempt.
func (m *ConnectionManager) sink(attempt uint64) Sink {
	return func(in Inbound) {
		m.handleInbound(attempt, in)
	}
}

func (m *ConnectionManager) handleInbound(attempt uint64, in Inbound) {
	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		m.logger.Debug("ignoring event from inactive connection", "kind", int(in.Kind))
		return
	}

	if m.state == StateConnecting {
		if in.Kind == InboundClosed {
			m.earlyDrop = in.Err
			if m.earlyDrop == nil {
				m.earlyDrop = errors.New("connection closed while opening")
			}
		}
		m.mu.Unlock()
		return
	}
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	var dropped Conn
	switch in.Kind {
	case InboundAck:
		m.emitAll(m.subs.Ack(in.CorrelationKey, m.conn))
	case InboundNack:
		m.emitAll(m.subs.Fail(in.CorrelationKey, in.Err))
	case InboundMessage:
		m.emit(Event{Kind: EventMessage, Topic: in.Topic, Payload: in.Payload})
	case InboundClosed:
		dropped = m.drop(in.Err)
	}
	m.mu.Unlock()

	if dropped != nil {
		_ = dropped.Close() //nolint:errcheck // Connection already lost
	}
}

// drop handles a connection lost while Connected. Caller holds mu.
// The returned Conn must be closed after mu is released.
func (m *ConnectionManager) drop(cause error) Conn {
	conn := m.conn
	m.conn = nil
	m.attempt++
	m.haltSweeper()
	discarded := m.subs.Reset()
	m.state = StateDisconnected
	m.logger.Warn("connection lost",
		"address", m.cfg.Address,
		"error", cause,
		"discarded_operations", discarded,
	)
	m.emit(Event{Kind: EventDisconnected, Address: m.cfg.Address, Err: transportError(cause)})
	return conn
}

// disconnect tears down the connection or abandons the attempt in progress.
func (m *ConnectionManager) disconnect() error {
	m.mu.Lock()
	switch m.state {
	case StateDisconnected:
		m.mu.Unlock()
		m.logger.Info("not connected")
		return ErrNotConnected
	case StateDisconnecting:
		m.mu.Unlock()
		m.logger.Debug("disconnect already in progress")
		return nil
	}

	m.logger.Info("disconnecting from broker", "address", m.cfg.Address, "state", m.state.String())
	m.state = StateDisconnecting
	m.teardown = make(chan struct{})
	m.attempt++
	m.awaitingTrust = false
	if m.cancelOpen != nil {
		m.cancelOpen()
		m.cancelOpen = nil
	}
	conn := m.conn
	m.conn = nil
	m.haltSweeper()
	if discarded := m.subs.Reset(); discarded > 0 {
		m.logger.Debug("discarded pending operations", "count", discarded)
	}
	m.mu.Unlock()

	// Closed outside the lock: the transport may still be delivering callbacks.
	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}

	m.mu.Lock()
	m.state = StateDisconnected
	ev := Event{Kind: EventDisconnected, Address: m.cfg.Address}
	if closeErr != nil {
		m.logger.Warn("transport close failed", "error", closeErr)
		ev.Err = transportError(closeErr)
	}
	m.logger.Info("disconnected", "address", m.cfg.Address)
	m.emit(ev)
	close(m.teardown)
	m.teardown = nil
	m.mu.Unlock()
	return nil
}

// close rejects further connects, disconnects or waits for a disconnect
// already under way, and then waits for background goroutines to exit.
// Every Disconnected event is queued before close returns.
func (m *ConnectionManager) close() {
	for {
		m.mu.Lock()
		m.closed = true
		state, teardown := m.state, m.teardown
		m.mu.Unlock()

		switch {
		case teardown != nil:
			<-teardown
		case state == StateDisconnected:
			m.wg.Wait()
			return
		default:
			_ = m.disconnect() //nolint:errcheck // ErrNotConnected is fine here
		}
	}
}

// liveConn returns the connection if Connected, nil otherwise. Caller holds mu.
func (m *ConnectionManager) liveConn() Conn {
	if m.state != StateConnected {
		return nil
	}
	return m.conn
}

// startSweeper expires pending operations while this attempt stays Connected.
// Caller holds mu.
func (m *ConnectionManager) startSweeper(attempt uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	m.stopSweeper = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.expire(attempt, now)
			}
		}
	}()
}

func (m *ConnectionManager) expire(attempt uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attempt != m.attempt || m.state != StateConnected {
		return
	}
	m.emitAll(m.subs.Expire(now))
}

// haltSweeper stops the sweeper without waiting for it. Caller holds mu.
func (m *ConnectionManager) haltSweeper() {
	if m.stopSweeper != nil {
		m.stopSweeper()
		m.stopSweeper = nil
	}
}

// emit stamps and queues ev. Caller holds mu, which fixes the delivery order.
func (m *ConnectionManager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.events.Dispatch(ev)
}

func (m *ConnectionManager) emitAll(events []Event) {
	for _, ev := range events {
		m.emit(ev)
	}
}
