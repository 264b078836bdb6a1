package pubsub

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultSubscribeTimeout bounds how long a subscribe or unsubscribe may
// wait for the broker's acknowledgment.
const DefaultSubscribeTimeout = 10 * time.Second

// OperationKind identifies what a PendingOperation is waiting for.
type OperationKind int

const (
	OpSubscribe OperationKind = iota + 1
	OpUnsubscribe
)

// String returns "subscribe" or "unsubscribe".
func (k OperationKind) String() string {
	switch k {
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	default:
		return ""
	}
}

func (k OperationKind) frameKind() FrameKind {
	if k == OpUnsubscribe {
		return FrameUnsubscribe
	}
	return FrameSubscribe
}

// TopicSubscription tracks what the caller wants for a topic and what the
// broker has acknowledged. Desired survives reconnects; Confirmed does not.
type TopicSubscription struct {
	Topic          string
	Desired        bool
	Confirmed      bool
	CorrelationKey string
}

// PendingOperation is an in-flight subscribe or unsubscribe awaiting acknowledgment.
type PendingOperation struct {
	CorrelationKey string
	Topic          string
	Kind           OperationKind
	IssuedAt       time.Time
	Timeout        time.Duration

	// wasConfirmed records, for an unsubscribe, whether the broker had
	// confirmed the topic when the operation was issued.
	wasConfirmed bool
}

// expired reports whether the operation has outlived its timeout at now.
func (op *PendingOperation) expired(now time.Time) bool {
	return now.Sub(op.IssuedAt) > op.Timeout
}

// SubscriptionStatus is a read-only snapshot of one topic.
type SubscriptionStatus struct {
	Topic     string `json:"topic"`
	Desired   bool   `json:"desired"`
	Confirmed bool   `json:"confirmed"`
	Pending   string `json:"pending,omitempty"`
}

// SubscriptionRegistry owns the topic subscriptions and the pending
// operations of one client.
//
// Invariant: at most one PendingOperation exists per topic.
//
// The registry performs no locking of its own; the Client serialises every
// call under the same mutex that guards the connection state. Methods that
// can produce events return them for the caller to dispatch in order.
type SubscriptionRegistry struct {
	subs     map[string]*TopicSubscription
	pending  map[string]*PendingOperation // keyed by correlation key
	inFlight map[string]string            // topic -> correlation key

	timeout time.Duration
	now     func() time.Time
	newKey  func() string
	logger  Logger
}

// NewSubscriptionRegistry creates an empty registry whose operations time
// out after timeout (DefaultSubscribeTimeout if zero or negative).
func NewSubscriptionRegistry(timeout time.Duration, logger Logger) *SubscriptionRegistry {
	if timeout <= 0 {
		timeout = DefaultSubscribeTimeout
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &SubscriptionRegistry{
		subs:     make(map[string]*TopicSubscription),
		pending:  make(map[string]*PendingOperation),
		inFlight: make(map[string]string),
		timeout:  timeout,
		now:      time.Now,
		newKey:   uuid.NewString,
		logger:   logger,
	}
}

// Subscribe marks each topic desired. When conn is non-nil (the client is
// Connected) a subscribe is issued for every topic that is neither confirmed
// nor already in flight; otherwise issuance waits for Replay.
func (r *SubscriptionRegistry) Subscribe(topics []string, conn Conn) []Event {
	var events []Event
	for _, topic := range topics {
		sub, ok := r.subs[topic]
		switch {
		case !ok:
			sub = &TopicSubscription{Topic: topic, Desired: true}
			r.subs[topic] = sub
		case sub.Desired && sub.Confirmed:
			r.logger.Info("already subscribed", "topic", topic)
			continue
		case r.inFlightKind(topic) == OpSubscribe:
			r.logger.Debug("subscription already in flight", "topic", topic)
			continue
		default:
			sub.Desired = true
		}

		if conn == nil {
			r.logger.Debug("subscription deferred until connected", "topic", topic)
			continue
		}
		if r.inFlightKind(topic) == OpUnsubscribe {
			// Re-issued once the unsubscribe resolves.
			continue
		}
		events = append(events, r.issue(conn, sub, OpSubscribe)...)
	}
	return events
}

// Unsubscribe clears desired for each known topic. An unsubscribe is issued
// only when conn is non-nil and the broker knows the topic (confirmed, or a
// subscribe is in flight); otherwise the record is simply dropped.
func (r *SubscriptionRegistry) Unsubscribe(topics []string, conn Conn) []Event {
	var events []Event
	for _, topic := range topics {
		sub, ok := r.subs[topic]
		if !ok {
			r.logger.Debug("unsubscribe ignored, topic not subscribed", "topic", topic)
			continue
		}

		inFlight := r.inFlightKind(topic)
		if inFlight == OpUnsubscribe {
			sub.Desired = false
			continue
		}
		if conn == nil || (!sub.Confirmed && inFlight != OpSubscribe) {
			delete(r.subs, topic)
			continue
		}

		sub.Desired = false
		if inFlight == OpSubscribe {
			// Superseded; a late acknowledgment for it is ignored.
			r.remove(r.pending[r.inFlight[topic]])
		}
		events = append(events, r.issue(conn, sub, OpUnsubscribe)...)
	}
	return events
}

// Ack resolves the operation with the given correlation key as successful.
// Unknown keys (stale, superseded or already timed out) are ignored.
func (r *SubscriptionRegistry) Ack(key string, conn Conn) []Event {
	op, ok := r.pending[key]
	if !ok {
		r.logger.Debug("ignoring acknowledgement for unknown operation", "correlation_key", key)
		return nil
	}
	r.remove(op)

	sub := r.subs[op.Topic]
	switch op.Kind {
	case OpSubscribe:
		if sub == nil || !sub.Desired {
			return nil
		}
		sub.Confirmed = true
		r.logger.Info("subscription confirmed", "topic", op.Topic)
		return []Event{{Kind: EventSubscriptionConfirmed, Topic: op.Topic}}

	case OpUnsubscribe:
		events := []Event{{Kind: EventUnsubscribed, Topic: op.Topic}}
		switch {
		case sub == nil:
		case sub.Desired:
			if conn != nil {
				events = append(events, r.issue(conn, sub, OpSubscribe)...)
			}
		default:
			delete(r.subs, op.Topic)
		}
		return events
	}
	return nil
}

// Fail resolves the operation with the given correlation key as rejected.
// A rejected subscribe leaves the topic desired so the caller may retry.
func (r *SubscriptionRegistry) Fail(key string, cause error) []Event {
	op, ok := r.pending[key]
	if !ok {
		r.logger.Debug("ignoring rejection for unknown operation", "correlation_key", key)
		return nil
	}
	r.remove(op)
	return []Event{r.failure(op, cause)}
}

// Expire removes every pending operation that has outlived its timeout at
// now and reports each one exactly once with ErrTimedOut.
func (r *SubscriptionRegistry) Expire(now time.Time) []Event {
	var expired []*PendingOperation
	for _, op := range r.pending {
		if op.expired(now) {
			expired = append(expired, op)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].IssuedAt.Equal(expired[j].IssuedAt) {
			return expired[i].Topic < expired[j].Topic
		}
		return expired[i].IssuedAt.Before(expired[j].IssuedAt)
	})

	events := make([]Event, 0, len(expired))
	for _, op := range expired {
		r.remove(op)
		r.logger.Warn("operation timed out",
			"operation", op.Kind.String(),
			"topic", op.Topic,
			"timeout", op.Timeout,
		)
		events = append(events, r.failure(op, ErrTimedOut))
	}
	return events
}

// Replay issues exactly one subscribe per desired topic on a fresh
// connection. Confirmation state starts false for each.
func (r *SubscriptionRegistry) Replay(conn Conn) []Event {
	r.clearPending()

	var events []Event
	for _, topic := range r.topics() {
		sub := r.subs[topic]
		if !sub.Desired {
			delete(r.subs, topic)
			continue
		}
		sub.Confirmed = false
		events = append(events, r.issue(conn, sub, OpSubscribe)...)
	}
	return events
}

// Reset forgets all broker-side state after a disconnect: confirmed flags
// are cleared and pending operations are discarded without events.
//
// Returns:
//   - int: number of pending operations discarded
func (r *SubscriptionRegistry) Reset() int {
	discarded := len(r.pending)
	r.clearPending()
	for topic, sub := range r.subs {
		if !sub.Desired {
			delete(r.subs, topic)
			continue
		}
		sub.Confirmed = false
		sub.CorrelationKey = ""
	}
	return discarded
}

// Snapshot returns the status of every tracked topic, sorted by topic.
func (r *SubscriptionRegistry) Snapshot() []SubscriptionStatus {
	out := make([]SubscriptionStatus, 0, len(r.subs))
	for _, topic := range r.topics() {
		sub := r.subs[topic]
		out = append(out, SubscriptionStatus{
			Topic:     topic,
			Desired:   sub.Desired,
			Confirmed: sub.Confirmed,
			Pending:   r.inFlightKind(topic).String(),
		})
	}
	return out
}

// PendingCount returns the number of in-flight operations.
func (r *SubscriptionRegistry) PendingCount() int {
	return len(r.pending)
}

// issue records a pending operation for sub and sends the matching frame.
// A send failure removes the operation again and is reported as a failure event.
func (r *SubscriptionRegistry) issue(conn Conn, sub *TopicSubscription, kind OperationKind) []Event {
	op := &PendingOperation{
		CorrelationKey: r.newKey(),
		Topic:          sub.Topic,
		Kind:           kind,
		IssuedAt:       r.now(),
		Timeout:        r.timeout,
		wasConfirmed:   sub.Confirmed,
	}
	if kind == OpUnsubscribe {
		sub.Confirmed = false
	}
	r.pending[op.CorrelationKey] = op
	r.inFlight[op.Topic] = op.CorrelationKey
	sub.CorrelationKey = op.CorrelationKey

	err := conn.Send(Frame{
		Kind:           kind.frameKind(),
		Topic:          op.Topic,
		CorrelationKey: op.CorrelationKey,
	})
	if err != nil {
		r.remove(op)
		r.logger.Warn("send failed", "operation", kind.String(), "topic", op.Topic, "error", err)
		return []Event{r.failure(op, transportError(err))}
	}

	r.logger.Debug("operation issued",
		"operation", kind.String(),
		"topic", op.Topic,
		"correlation_key", op.CorrelationKey,
	)
	return nil
}

// failure builds the failure event for op and restores the record so the
// caller can retry. A failed unsubscribe of a confirmed topic leaves it
// confirmed, since the broker most likely still holds it; an unconfirmed
// topic nobody wants any more is dropped.
func (r *SubscriptionRegistry) failure(op *PendingOperation, cause error) Event {
	if op.Kind == OpUnsubscribe {
		if sub, ok := r.subs[op.Topic]; ok {
			sub.Confirmed = op.wasConfirmed
			if !sub.Confirmed && !sub.Desired {
				delete(r.subs, op.Topic)
			}
		}
		return Event{Kind: EventUnsubscribeFailed, Topic: op.Topic, Err: subscriptionError(cause)}
	}
	return Event{Kind: EventSubscriptionFailed, Topic: op.Topic, Err: subscriptionError(cause)}
}

func (r *SubscriptionRegistry) remove(op *PendingOperation) {
	if op == nil {
		return
	}
	delete(r.pending, op.CorrelationKey)
	if r.inFlight[op.Topic] == op.CorrelationKey {
		delete(r.inFlight, op.Topic)
	}
}

func (r *SubscriptionRegistry) clearPending() {
	clear(r.pending)
	clear(r.inFlight)
}

func (r *SubscriptionRegistry) inFlightKind(topic string) OperationKind {
	key, ok := r.inFlight[topic]
	if !ok {
		return 0
	}
	return r.pending[key].Kind
}

func (r *SubscriptionRegistry) topics() []string {
	topics := make([]string, 0, len(r.subs))
	for topic := range r.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
