package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/logging"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// Relay channels a WebSocket peer can subscribe to.
const (
	ChannelLifecycle = "lifecycle"
	ChannelMessage   = "message"
)

// peerQueueSize is the number of frames buffered per peer before new
// frames are dropped.
const peerQueueSize = 256

// EventPayload is the relay form of a pubsub.Event.
// Message payloads are base64 encoded by encoding/json.
type EventPayload struct {
	Kind    string `json:"kind"`
	Topic   string `json:"topic,omitempty"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

func newEventPayload(ev pubsub.Event) EventPayload {
	p := EventPayload{
		Kind:    ev.Kind.String(),
		Topic:   ev.Topic,
		Address: ev.Address,
		Payload: ev.Payload,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return p
}

// channelFor maps an event kind to its relay channel.
func channelFor(kind pubsub.EventKind) string {
	if kind == pubsub.EventMessage {
		return ChannelMessage
	}
	return ChannelLifecycle
}

func knownChannel(name string) bool {
	return name == ChannelLifecycle || name == ChannelMessage
}

// Hub fans relay frames out to connected WebSocket peers.
type Hub struct {
	logger *logging.Logger

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

// NewHub returns an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		peers:  make(map[*peer]struct{}),
	}
}

// Run waits for ctx to end and then drops every peer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*peer]struct{})
	h.mu.Unlock()

	for p := range peers {
		p.close()
		if p.conn != nil {
			p.conn.Close()
		}
	}
}

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.logger.Debug("relay peer joined", "peers", n)
}

// remove detaches p and closes its queue. Safe to call more than once.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	n := len(h.peers)
	h.mu.Unlock()
	p.close()
	h.logger.Debug("relay peer left", "peers", n)
}

// Len returns the number of connected peers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Publish queues data for every peer subscribed to channel.
// Peers whose queue is full miss the frame.
func (h *Hub) Publish(channel string, data any) {
	frame, err := json.Marshal(RelayFrame{
		Op:      OpEvent,
		Channel: channel,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
		Data:    data,
	})
	if err != nil {
		h.logger.Error("encoding relay frame", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p.wants(channel) {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		p.deliver(frame)
	}
}

// peer is one WebSocket connection on the relay.
type peer struct {
	conn *websocket.Conn
	out  chan []byte

	mu       sync.Mutex
	closed   bool
	channels map[string]bool
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn:     conn,
		out:      make(chan []byte, peerQueueSize),
		channels: make(map[string]bool),
	}
}

// deliver queues frame without blocking. It reports false when the frame
// was dropped.
func (p *peer) deliver(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.out)
	}
}

func (p *peer) wants(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[channel]
}

func (p *peer) setChannels(names []string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, name := range names {
		if on {
			p.channels[name] = true
		} else {
			delete(p.channels, name)
		}
	}
}
