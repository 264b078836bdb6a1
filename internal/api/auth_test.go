package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var testSecret = strings.Repeat("k", 32)

// authServer returns a Server with bearer-token auth enabled.
func authServer(t *testing.T) *Server {
	t.Helper()
	deps := testDeps(&fakeSession{}, nil)
	deps.Config.Auth.Enabled = true
	deps.Config.Auth.JWTSecret = testSecret
	deps.Config.Auth.Issuer = "pubsubd"
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := IssueToken(testSecret, "pubsubd", "openfin-host", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func doAuth(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ─── Token Tests ───────────────────────────────────────────────────

func TestIssueAndParseToken(t *testing.T) {
	token := testToken(t)

	claims, err := ParseToken(token, testSecret, "pubsubd")
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "openfin-host" {
		t.Errorf("Subject = %q, want openfin-host", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("ID is empty, want a token ID")
	}
}

func TestIssueToken_RequiresSubject(t *testing.T) {
	if _, err := IssueToken(testSecret, "pubsubd", "", time.Hour); err == nil {
		t.Error("IssueToken() with empty subject expected error, got nil")
	}
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := IssueToken(testSecret, "pubsubd", "host", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "host",
			Issuer:    "pubsubd",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing unsigned token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
		issuer string
	}{
		{"wrong secret", testToken(t), strings.Repeat("x", 32), "pubsubd"},
		{"wrong issuer", testToken(t), testSecret, "someone-else"},
		{"expired", expired, testSecret, "pubsubd"},
		{"alg none", unsigned, testSecret, "pubsubd"},
		{"garbage", "not.a.token", testSecret, "pubsubd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret, tt.issuer); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestAuthMiddleware_DisabledAllowsAll(t *testing.T) {
	srv, _ := testServer(t)
	if w := doAuth(t, srv.buildRouter(), http.MethodGet, "/api/v1/status", ""); w.Code != http.StatusOK {
		t.Errorf("status without token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_Enabled(t *testing.T) {
	router := authServer(t).buildRouter()

	if w := doAuth(t, router, http.MethodGet, "/api/v1/health", ""); w.Code != http.StatusOK {
		t.Errorf("health without token = %d, want 200", w.Code)
	}

	w := doAuth(t, router, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
	var body Error
	decode(t, w, &body)
	if body.Code != ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, ErrCodeUnauthorized)
	}

	if w := doAuth(t, router, http.MethodPost, "/api/v1/connect", "forged"); w.Code != http.StatusUnauthorized {
		t.Errorf("connect with bad token = %d, want 401", w.Code)
	}
	if w := doAuth(t, router, http.MethodGet, "/api/v1/status", testToken(t)); w.Code != http.StatusOK {
		t.Errorf("status with token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_PreflightNeedsNoToken(t *testing.T) {
	router := authServer(t).buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q, want Authorization listed", got)
	}
}

// ─── Ticket Tests ──────────────────────────────────────────────────

func TestTicketStore_SingleUse(t *testing.T) {
	store := newTicketStore(time.Minute)

	ticket, err := store.issue()
	if err != nil {
		t.Fatalf("issue() error = %v", err)
	}
	if len(ticket) != 2*ticketBytes {
		t.Errorf("ticket length = %d, want %d", len(ticket), 2*ticketBytes)
	}
	if !store.redeem(ticket) {
		t.Fatal("redeem() of a fresh ticket = false")
	}
	if store.redeem(ticket) {
		t.Error("second redeem() = true, want single use")
	}
	if store.redeem("unknown") {
		t.Error("redeem(unknown) = true")
	}
}

func TestTicketStore_Expiry(t *testing.T) {
	store := newTicketStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stale, _ := store.issue() //nolint:errcheck // crypto/rand does not fail in tests
	now = now.Add(2 * time.Minute)

	if store.redeem(stale) {
		t.Error("redeem() of an expired ticket = true")
	}

	// Issuing prunes expired tickets.
	store.issue() //nolint:errcheck // crypto/rand does not fail in tests
	old, _ := store.issue() //nolint:errcheck // crypto/rand does not fail in tests
	now = now.Add(2 * time.Minute)
	store.issue() //nolint:errcheck // crypto/rand does not fail in tests
	store.mu.Lock()
	_, kept := store.tickets[old]
	n := len(store.tickets)
	store.mu.Unlock()
	if kept || n != 1 {
		t.Errorf("tickets after prune = %d (old kept %v), want 1", n, kept)
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	srv := authServer(t)
	addr := startServer(t, srv)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	if err == nil {
		t.Fatal("dial without ticket succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without ticket response = %v, want 401", resp)
	}
	resp.Body.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "http://"+addr+"/api/v1/auth/ws-ticket", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken(t))
	ticketResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ticket request: %v", err)
	}
	defer ticketResp.Body.Close()
	if ticketResp.StatusCode != http.StatusOK {
		t.Fatalf("ticket status = %d, want 200", ticketResp.StatusCode)
	}
	var body struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(ticketResp.Body).Decode(&body); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if body.ExpiresIn != int(ticketTTL.Seconds()) {
		t.Errorf("expires_in = %d, want %d", body.ExpiresIn, int(ticketTTL.Seconds()))
	}

	relayURL := "ws://" + addr + "/api/v1/ws?ticket=" + url.QueryEscape(body.Ticket)
	ws, resp, err := websocket.DefaultDialer.Dial(relayURL, nil)
	if err != nil {
		t.Fatalf("dial with ticket failed: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })

	// The ticket was consumed.
	if _, resp, err := websocket.DefaultDialer.Dial(relayURL, nil); err == nil {
		t.Error("second dial with the same ticket succeeded")
	} else if resp != nil {
		resp.Body.Close()
	}
}
