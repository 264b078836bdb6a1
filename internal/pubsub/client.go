package pubsub

import (
	"sort"
	"sync"
	"time"
)

// Options configures a Client. The zero value is usable.
type Options struct {
	// SubscribeTimeout bounds each subscribe/unsubscribe acknowledgment.
	// Default: DefaultSubscribeTimeout (10s).
	SubscribeTimeout time.Duration

	// SweepInterval is how often timed-out operations are detected.
	// Default: DefaultSweepInterval (1s).
	SweepInterval time.Duration

	// Logger receives lifecycle logging. Nil discards it.
	Logger Logger
}

// Client is one pub/sub session: a ConnectionManager, a SubscriptionRegistry
// and a Dispatcher sharing a single mutex.
//
// Nothing is process-wide; create one Client per broker session.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Handlers run on the dispatcher goroutine and may call back into the Client,
//     except Close.
type Client struct {
	mu     sync.Mutex
	conn   *ConnectionManager
	subs   *SubscriptionRegistry
	events *Dispatcher
	logger Logger

	closeOnce sync.Once
}

// New creates a disconnected Client that will open connections through transport.
func New(transport Transport, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	c := &Client{logger: logger}
	c.subs = NewSubscriptionRegistry(opts.SubscribeTimeout, logger)
	c.events = NewDispatcher(logger)
	c.conn = newConnectionManager(&c.mu, transport, c.subs, c.events, opts.SweepInterval, logger)
	return c
}

// Connect starts connecting to the broker described by cfg.
//
// The transport is opened asynchronously; completion is reported with
// EventUp or EventConnectFailed. For wss:// and https:// addresses the
// sequence first pauses with EventTrustRequired until TrustReady is called.
//
// Returns:
//   - ErrAlreadyConnected: state is not Disconnected (no second session is opened)
//   - ErrInvalidConfig: a field is missing or the scheme is unsupported
//   - ErrClosed: the client has been closed
func (c *Client) Connect(cfg Config) error {
	return c.conn.connect(cfg)
}

// Disconnect closes the connection, or abandons the attempt in progress.
// Pending operations are discarded without events; confirmed flags reset.
// EventDisconnected is emitted once the transport is closed.
//
// Returns:
//   - ErrNotConnected: the client is already Disconnected
func (c *Client) Disconnect() error {
	return c.conn.disconnect()
}

// TrustReady signals that the external trust step for a secure address has
// completed, resuming the paused connect sequence.
func (c *Client) TrustReady() error {
	return c.conn.trustReady()
}

// AbortTrust abandons a connect sequence paused for trust provisioning.
// EventConnectFailed is emitted with reason.
func (c *Client) AbortTrust(reason error) error {
	return c.conn.abortTrust(reason)
}

// Subscribe marks topics as desired.
//
// While Connected, one subscribe is issued per topic that is neither
// confirmed nor already in flight; outcomes arrive as
// EventSubscriptionConfirmed or EventSubscriptionFailed. Otherwise issuance
// is deferred to the next EventUp. Subscribing to a confirmed topic is a no-op.
//
// Returns:
//   - ErrInvalidTopic: a topic name is empty (nothing is changed)
func (c *Client) Subscribe(topics ...string) error {
	topics, err := normalizeTopics(topics)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.closed {
		return ErrClosed
	}
	c.conn.emitAll(c.subs.Subscribe(topics, c.conn.liveConn()))
	return nil
}

// Unsubscribe stops wanting topics. While Connected an unsubscribe is sent
// and reported with EventUnsubscribed or EventUnsubscribeFailed; otherwise
// the topics are forgotten locally.
func (c *Client) Unsubscribe(topics ...string) error {
	topics, err := normalizeTopics(topics)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn.closed {
		return ErrClosed
	}
	c.conn.emitAll(c.subs.Unsubscribe(topics, c.conn.liveConn()))
	return nil
}

// OnMessage registers the handler for inbound messages. Last registration wins.
func (c *Client) OnMessage(handler MessageHandler) {
	c.events.SetMessageHandler(handler)
}

// OnLifecycleEvent registers the handler for lifecycle events. Last registration wins.
func (c *Client) OnLifecycleEvent(handler LifecycleHandler) {
	c.events.SetLifecycleHandler(handler)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.state
}

// Subscriptions returns a snapshot of every tracked topic, sorted by topic.
func (c *Client) Subscriptions() []SubscriptionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.Snapshot()
}

// PendingCount returns the number of operations awaiting acknowledgment.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.PendingCount()
}

// Close disconnects if necessary, delivers already-queued events and
// releases all goroutines. The Client cannot be reused.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.conn.close()
		c.events.Close()
	})
	return nil
}

// normalizeTopics rejects empty names and returns the distinct topics in order.
func normalizeTopics(topics []string) ([]string, error) {
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic == "" {
			return nil, ErrInvalidTopic
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}
		out = append(out, topic)
	}
	sort.Strings(out)
	return out, nil
}
