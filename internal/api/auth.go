package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ticketTTL is how long a WebSocket ticket may wait to be redeemed.
	ticketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes in a WebSocket ticket.
	ticketBytes = 32
)

// ErrTokenInvalid is returned for a missing, malformed, expired or
// wrongly signed bearer token.
var ErrTokenInvalid = errors.New("invalid or expired token")

// Claims are the JWT claims pubsubd issues and accepts.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject that expires after ttl.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken checks the signature, expiry and (when issuer is set) issuer of
// an HS256 token and returns its claims.
func ParseToken(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

type subjectKey struct{}

// subjectFrom returns the authenticated token subject, or "".
func subjectFrom(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string) //nolint:errcheck // Missing subject yields ""
	return sub
}

// authMiddleware requires a valid bearer token when api.auth is enabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := s.bearerClaims(r)
		if err != nil {
			s.logger.Warn("unauthenticated request rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", requestIDFrom(r.Context()),
				"error", err,
			)
			writeUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, claims.Subject)))
	})
}

func (s *Server) bearerClaims(r *http.Request) (*Claims, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrTokenInvalid)
	}
	return ParseToken(token, s.cfg.Auth.JWTSecret, s.cfg.Auth.Issuer)
}

// authorizeRelay admits a WebSocket upgrade carrying a valid ticket query
// parameter or bearer token. Always true when auth is disabled.
func (s *Server) authorizeRelay(r *http.Request) bool {
	if !s.cfg.Auth.Enabled {
		return true
	}
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		return s.tickets.redeem(ticket)
	}
	_, err := s.bearerClaims(r)
	return err == nil
}

// handleWSTicket issues a single-use ticket for the WebSocket relay.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.tickets.issue()
	if err != nil {
		s.logger.Error("generating websocket ticket", "error", err)
		writeInternalError(w, "failed to issue ticket")
		return
	}
	s.logger.Debug("websocket ticket issued", "subject", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(s.tickets.ttl.Seconds()),
	})
}

// ticketStore holds unredeemed WebSocket tickets. Tickets are single-use.
type ticketStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	tickets map[string]time.Time // ticket -> expiry
}

func newTicketStore(ttl time.Duration) *ticketStore {
	return &ticketStore{
		ttl:     ttl,
		now:     time.Now,
		tickets: make(map[string]time.Time),
	}
}

// issue creates a ticket and prunes expired ones.
func (t *ticketStore) issue() (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, exp := range t.tickets {
		if !now.Before(exp) {
			delete(t.tickets, k)
		}
	}
	t.tickets[ticket] = now.Add(t.ttl)
	return ticket, nil
}

// redeem consumes ticket and reports whether it was valid.
func (t *ticketStore) redeem(ticket string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	exp, ok := t.tickets[ticket]
	if !ok {
		return false
	}
	delete(t.tickets, ticket)
	return t.now().Before(exp)
}
