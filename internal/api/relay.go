package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
)

// Relay frame operations.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
	OpPong        = "pong"
	OpEvent       = "event"
	OpAck         = "ack"
	OpError       = "error"
)

// RelayFrame is the single JSON shape exchanged in both directions on the
// relay socket.
//
//	→ {"op":"subscribe","id":"1","channels":["message"]}
//	← {"op":"ack","id":"1","channels":["message"],"at":"..."}
//	← {"op":"event","channel":"message","at":"...","data":{"kind":"message",...}}
type RelayFrame struct {
	Op       string   `json:"op"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Channels []string `json:"channels,omitempty"`
	At       string   `json:"at,omitempty"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// relayTiming holds the per-connection limits derived from configuration.
type relayTiming struct {
	readLimit int64
	pingEvery time.Duration
	pongWait  time.Duration
}

func newRelayTiming(cfg config.WebSocketConfig) relayTiming {
	t := relayTiming{
		readLimit: int64(cfg.MaxMessageSize),
		pingEvery: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:  time.Duration(cfg.PongTimeout) * time.Second,
	}
	if t.readLimit <= 0 {
		t.readLimit = 8192
	}
	if t.pingEvery <= 0 {
		t.pingEvery = 30 * time.Second
	}
	if t.pongWait <= 0 {
		t.pongWait = 10 * time.Second
	}
	return t
}

// idle is how long a peer may stay silent before it is dropped.
func (t relayTiming) idle() time.Duration {
	return t.pingEvery + t.pongWait
}

// Origins are checked by the CORS policy, not the upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the request and attaches a peer to the hub.
// With auth enabled the request needs ?ticket= from POST /auth/ws-ticket or
// a bearer token. A new peer receives nothing until it subscribes to a channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRelay(r) {
		writeUnauthorized(w, "valid ticket or bearer token required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := newPeer(conn)
	s.hub.add(p)

	go s.writeFrames(p)
	go s.readFrames(p)
}

// readFrames handles inbound frames until the socket fails, then detaches p.
func (s *Server) readFrames(p *peer) {
	defer func() {
		s.hub.remove(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(s.relay.readLimit)
	extend := func() error {
		return p.conn.SetReadDeadline(time.Now().Add(s.relay.idle()))
	}
	//nolint:errcheck // Failure surfaces on the first read
	extend()
	p.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("relay read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // Failure surfaces on the next read
		extend()
		s.handleFrame(p, data)
	}
}

// writeFrames drains p's queue onto the socket and pings on an interval.
func (s *Server) writeFrames(p *peer) {
	ticker := time.NewTicker(s.relay.pingEvery)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // The write below reports the failure
		p.conn.SetWriteDeadline(time.Now().Add(s.relay.pongWait))
		return p.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-p.out:
			if !ok {
				//nolint:errcheck // Peer is going away regardless
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleFrame(p *peer, data []byte) {
	var in RelayFrame
	if err := json.Unmarshal(data, &in); err != nil {
		reply(p, RelayFrame{Op: OpError, Error: "invalid JSON frame"})
		return
	}

	switch in.Op {
	case OpPing:
		reply(p, RelayFrame{Op: OpPong, ID: in.ID})
	case OpSubscribe, OpUnsubscribe:
		for _, name := range in.Channels {
			if !knownChannel(name) {
				reply(p, RelayFrame{Op: OpError, ID: in.ID, Error: "unknown channel: " + name})
				return
			}
		}
		p.setChannels(in.Channels, in.Op == OpSubscribe)
		s.logger.Debug("relay channels updated", "op", in.Op, "channels", in.Channels)
		reply(p, RelayFrame{Op: OpAck, ID: in.ID, Channels: in.Channels})
	default:
		reply(p, RelayFrame{Op: OpError, ID: in.ID, Error: "unknown op: " + in.Op})
	}
}

// reply stamps and queues a direct response to p.
func reply(p *peer, f RelayFrame) {
	f.At = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	p.deliver(data)
}
