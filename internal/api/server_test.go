package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/database"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/logging"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/journal"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/migrations"
)

// fakeSession records calls and returns canned errors.
type fakeSession struct {
	mu            sync.Mutex
	state         pubsub.ConnectionState
	connectErr    error
	disconnectErr error
	subscribeErr  error
	connectedWith []pubsub.Config
	subscribed    []string
	unsubscribed  []string
	subscriptions []pubsub.SubscriptionStatus
	pending       int
}

func (f *fakeSession) Connect(cfg pubsub.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connectedWith = append(f.connectedWith, cfg)
	f.state = pubsub.StateConnecting
	return nil
}

func (f *fakeSession) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disconnectErr != nil {
		return f.disconnectErr
	}
	f.state = pubsub.StateDisconnecting
	return nil
}

func (f *fakeSession) Subscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, topics...)
	return nil
}

func (f *fakeSession) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSession) State() pubsub.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Subscriptions() []pubsub.SubscriptionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pubsub.SubscriptionStatus{}, f.subscriptions...)
}

func (f *fakeSession) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

var testBroker = pubsub.Config{
	Address:   "ws://localhost:8008",
	Namespace: "default",
	Username:  "default",
	Password:  "default",
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

func testDeps(session Session, repo journal.Repository) Deps {
	return Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  testLogger(),
		Session: session,
		Broker:  testBroker,
		Journal: repo,
		Version: "test",
	}
}

// testServer returns a Server on a fake session with no journal.
func testServer(t *testing.T) (*Server, *fakeSession) {
	t.Helper()
	session := &fakeSession{}
	srv, err := New(testDeps(session, nil))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, session
}

// testJournal returns a migrated in-memory journal.
func testJournal(t *testing.T) *journal.SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return journal.NewSQLiteRepository(db.DB)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Session: &fakeSession{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without session should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v, want status ok, version test", resp)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	srv, _ := testServer(t)

	long := strings.Repeat("x", maxRequestIDLength+1)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", long)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got == long || got == "" {
		t.Errorf("X-Request-ID = %q, want a generated ID", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var body Error
	decode(t, w, &body)
	if body.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeInternal)
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	session := &fakeSession{}
	deps := testDeps(session, nil)
	deps.Config.CORS.AllowedOrigins = []string{"http://dashboard.local"}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/nonexistent", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
	var body Error
	decode(t, w, &body)
	if body.Code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeNotFound)
	}
}

// ─── Session Command Tests ─────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, session := testServer(t)
	session.state = pubsub.StateConnected
	session.pending = 1
	session.subscriptions = []pubsub.SubscriptionStatus{
		{Topic: "prices/eur", Desired: true, Confirmed: true},
		{Topic: "prices/usd", Desired: true, Pending: "subscribe"},
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}

	var resp statusResponse
	decode(t, w, &resp)
	if resp.State != "connected" {
		t.Errorf("state = %q, want connected", resp.State)
	}
	if resp.Pending != 1 {
		t.Errorf("pending = %d, want 1", resp.Pending)
	}
	if len(resp.Subscriptions) != 2 || resp.Subscriptions[1].Pending != "subscribe" {
		t.Errorf("subscriptions = %+v", resp.Subscriptions)
	}
}

func TestConnect_UsesConfiguredBroker(t *testing.T) {
	srv, session := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/connect", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("connect status = %d, want 202", w.Code)
	}
	if len(session.connectedWith) != 1 || session.connectedWith[0] != testBroker {
		t.Errorf("Connect() called with %+v, want %+v", session.connectedWith, testBroker)
	}

	var resp statusResponse
	decode(t, w, &resp)
	if resp.State != "connecting" {
		t.Errorf("state = %q, want connecting", resp.State)
	}
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fakeSession)
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "connect while connected",
			setup:      func(f *fakeSession) { f.connectErr = pubsub.ErrAlreadyConnected },
			method:     http.MethodPost,
			path:       "/api/v1/connect",
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
		},
		{
			name:       "connect with invalid config",
			setup:      func(f *fakeSession) { f.connectErr = pubsub.ErrInvalidConfig },
			method:     http.MethodPost,
			path:       "/api/v1/connect",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "connect after close",
			setup:      func(f *fakeSession) { f.connectErr = pubsub.ErrClosed },
			method:     http.MethodPost,
			path:       "/api/v1/connect",
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeUnavailable,
		},
		{
			name:       "disconnect while disconnected",
			setup:      func(f *fakeSession) { f.disconnectErr = pubsub.ErrNotConnected },
			method:     http.MethodPost,
			path:       "/api/v1/disconnect",
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
		},
		{
			name:       "subscribe invalid topic",
			setup:      func(f *fakeSession) { f.subscribeErr = pubsub.ErrInvalidTopic },
			method:     http.MethodPost,
			path:       "/api/v1/subscriptions",
			body:       `{"topics":["a",""]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "subscribe without body",
			setup:      func(*fakeSession) {},
			method:     http.MethodPost,
			path:       "/api/v1/subscriptions",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "subscribe invalid JSON",
			setup:      func(*fakeSession) {},
			method:     http.MethodPost,
			path:       "/api/v1/subscriptions",
			body:       `{"topics":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "subscribe no topics",
			setup:      func(*fakeSession) {},
			method:     http.MethodPost,
			path:       "/api/v1/subscriptions",
			body:       `{"topics":[]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, session := testServer(t)
			tt.setup(session)

			w := do(t, srv.buildRouter(), tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			var resp Error
			decode(t, w, &resp)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestDisconnect(t *testing.T) {
	srv, session := testServer(t)
	session.state = pubsub.StateConnected

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/disconnect", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("disconnect status = %d, want 202", w.Code)
	}
	if got := session.State(); got != pubsub.StateDisconnecting {
		t.Errorf("state = %s, want disconnecting", got)
	}
}

func TestSubscribe(t *testing.T) {
	srv, session := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/subscriptions", `{"topics":["prices/eur","prices/#"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("subscribe status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	if got := strings.Join(session.subscribed, ","); got != "prices/eur,prices/#" {
		t.Errorf("subscribed = %q, want prices/eur,prices/#", got)
	}
}

func TestUnsubscribe_TopicWithSlashes(t *testing.T) {
	srv, session := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodDelete, "/api/v1/subscriptions/prices/eur/spot", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("unsubscribe status = %d, want 202", w.Code)
	}
	if len(session.unsubscribed) != 1 || session.unsubscribed[0] != "prices/eur/spot" {
		t.Errorf("unsubscribed = %v, want [prices/eur/spot]", session.unsubscribed)
	}
}

func TestUnsubscribe_EscapedWildcard(t *testing.T) {
	srv, session := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodDelete, "/api/v1/subscriptions/prices/%23", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("unsubscribe status = %d, want 202", w.Code)
	}
	if len(session.unsubscribed) != 1 || session.unsubscribed[0] != "prices/#" {
		t.Errorf("unsubscribed = %v, want [prices/#]", session.unsubscribed)
	}
}

func TestListSubscriptions(t *testing.T) {
	srv, session := testServer(t)
	session.subscriptions = []pubsub.SubscriptionStatus{{Topic: "a", Desired: true}}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/subscriptions", "")
	var resp struct {
		Subscriptions []pubsub.SubscriptionStatus `json:"subscriptions"`
	}
	decode(t, w, &resp)
	if len(resp.Subscriptions) != 1 || resp.Subscriptions[0].Topic != "a" {
		t.Errorf("subscriptions = %+v", resp.Subscriptions)
	}
}

// ─── Journal Tests ─────────────────────────────────────────────────

func TestListEvents_JournalDisabled(t *testing.T) {
	srv, _ := testServer(t)
	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/events", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	repo := testJournal(t)
	ctx := context.Background()
	for _, e := range []journal.Entry{
		{Kind: "up", Address: "ws://localhost:8008"},
		{Kind: "subscription_confirmed", Topic: "a"},
		{Kind: "subscription_failed", Topic: "b", Error: "timed out"},
	} {
		entry := e
		if err := repo.Create(ctx, &entry); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	srv, err := New(testDeps(&fakeSession{}, repo))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/events?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var page journal.ListResult
	decode(t, w, &page)
	if page.Total != 3 || len(page.Entries) != 2 {
		t.Fatalf("total = %d, entries = %d, want 3 and 2", page.Total, len(page.Entries))
	}
	if page.Entries[0].Kind != "subscription_failed" {
		t.Errorf("first entry = %q, want newest (subscription_failed)", page.Entries[0].Kind)
	}

	w = do(t, router, http.MethodGet, "/api/v1/events?kind=up", "")
	decode(t, w, &page)
	if page.Total != 1 || page.Entries[0].Address != "ws://localhost:8008" {
		t.Errorf("kind filter = %+v", page)
	}

	w = do(t, router, http.MethodGet, "/api/v1/events?limit=-1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", w.Code)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestHub_PublishToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	p := newPeer(nil)
	p.setChannels([]string{ChannelLifecycle}, true)
	hub.add(p)

	hub.Publish(ChannelLifecycle, newEventPayload(pubsub.Event{Kind: pubsub.EventUp}))

	select {
	case data := <-p.out:
		var frame RelayFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if frame.Op != OpEvent || frame.Channel != ChannelLifecycle {
			t.Errorf("frame = %+v, want lifecycle event", frame)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for published frame")
	}
}

func TestHub_SkipsUnsubscribedPeers(t *testing.T) {
	hub := newTestHub(t)

	p := newPeer(nil)
	p.setChannels([]string{ChannelLifecycle}, true)
	hub.add(p)

	hub.Publish(ChannelMessage, newEventPayload(pubsub.Event{Kind: pubsub.EventMessage, Topic: "a"}))

	select {
	case <-p.out:
		t.Error("peer without the message channel received a frame")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_AddRemove(t *testing.T) {
	hub := newTestHub(t)

	p := newPeer(nil)
	hub.add(p)
	if hub.Len() != 1 {
		t.Errorf("after add Len() = %d, want 1", hub.Len())
	}

	hub.remove(p)
	hub.remove(p)
	if hub.Len() != 0 {
		t.Errorf("after remove Len() = %d, want 0", hub.Len())
	}
	if p.deliver([]byte("{}")) {
		t.Error("deliver() to a removed peer reported success")
	}
}

func TestPeer_DropsWhenQueueFull(t *testing.T) {
	p := newPeer(nil)
	for i := 0; i < peerQueueSize; i++ {
		if !p.deliver([]byte("{}")) {
			t.Fatalf("deliver() #%d dropped before the queue was full", i)
		}
	}
	if p.deliver([]byte("{}")) {
		t.Error("deliver() to a full queue reported success")
	}
}

func TestNewRelayTiming_Defaults(t *testing.T) {
	got := newRelayTiming(config.WebSocketConfig{})
	if got.readLimit != 8192 || got.pingEvery != 30*time.Second || got.pongWait != 10*time.Second {
		t.Errorf("newRelayTiming(zero) = %+v", got)
	}
	if got.idle() != 40*time.Second {
		t.Errorf("idle() = %v, want 40s", got.idle())
	}
}

func TestChannelFor(t *testing.T) {
	if got := channelFor(pubsub.EventMessage); got != ChannelMessage {
		t.Errorf("channelFor(message) = %q, want %q", got, ChannelMessage)
	}
	for _, kind := range []pubsub.EventKind{pubsub.EventUp, pubsub.EventDisconnected, pubsub.EventSubscriptionFailed, pubsub.EventTrustRequired} {
		if got := channelFor(kind); got != ChannelLifecycle {
			t.Errorf("channelFor(%s) = %q, want %q", kind, got, ChannelLifecycle)
		}
	}
}

// ─── Live Server Tests ─────────────────────────────────────────────

// startServer runs srv on an ephemeral port and closes it at test end.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv.Addr()
}

func TestServer_StartAndClose(t *testing.T) {
	srv, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	addr := startServer(t, srv)
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func dialRelay(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) RelayFrame {
	t.Helper()
	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f RelayFrame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestWebSocket_RelaysSubscribedChannels(t *testing.T) {
	srv, _ := testServer(t)
	addr := startServer(t, srv)
	ws := dialRelay(t, addr)

	if err := ws.WriteJSON(RelayFrame{Op: OpSubscribe, ID: "sub-1", Channels: []string{ChannelMessage}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readFrame(t, ws); resp.Op != OpAck || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Lifecycle events are not relayed to a message-only client.
	srv.Relay(pubsub.Event{Kind: pubsub.EventUp})
	srv.Relay(pubsub.Event{Kind: pubsub.EventMessage, Topic: "prices/eur", Payload: []byte("1.08")})

	f := readFrame(t, ws)
	if f.Op != OpEvent || f.Channel != ChannelMessage {
		t.Fatalf("frame = %+v, want event on %q", f, ChannelMessage)
	}
	payload, ok := f.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T, want object", f.Data)
	}
	if payload["kind"] != "message" || payload["topic"] != "prices/eur" {
		t.Errorf("payload = %v", payload)
	}
	if payload["payload"] != base64.StdEncoding.EncodeToString([]byte("1.08")) {
		t.Errorf("payload bytes = %v, want base64 of 1.08", payload["payload"])
	}
}

func TestWebSocket_PingAndErrors(t *testing.T) {
	srv, _ := testServer(t)
	addr := startServer(t, srv)
	ws := dialRelay(t, addr)

	if err := ws.WriteJSON(RelayFrame{Op: OpPing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if resp := readFrame(t, ws); resp.Op != OpPong || resp.ID != "p1" {
		t.Errorf("ping response = %+v, want pong p1", resp)
	}

	if err := ws.WriteJSON(RelayFrame{Op: OpSubscribe, ID: "s1", Channels: []string{"prices"}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readFrame(t, ws); resp.Op != OpError || resp.ID != "s1" {
		t.Errorf("unknown channel response = %+v, want error", resp)
	}

	if err := ws.WriteJSON(RelayFrame{Op: "publish", ID: "x"}); err != nil {
		t.Fatalf("write unknown op: %v", err)
	}
	if resp := readFrame(t, ws); resp.Op != OpError {
		t.Errorf("unknown op response = %+v, want error", resp)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if resp := readFrame(t, ws); resp.Op != OpError {
		t.Errorf("junk response = %+v, want error", resp)
	}
}
