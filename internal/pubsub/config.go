package pubsub

import (
	"fmt"
	"log/slog"
	"strings"
)

// Address schemes accepted by Connect.
const (
	SchemeWS    = "ws"
	SchemeWSS   = "wss"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Config holds the broker session properties passed to Connect.
// Every field is required.
type Config struct {
	// Address is the broker URL, e.g. "ws://localhost:80".
	Address string

	// Namespace isolates this session on the broker (a message VPN or
	// topic root, depending on the transport).
	Namespace string

	Username string
	Password string
}

// Validate checks that all fields are present and the address scheme is
// one of ws, wss, http or https.
//
// Returns:
//   - error: wraps ErrInvalidConfig and lists every problem found, or nil
func (c Config) Validate() error {
	var errs []string

	if c.Address == "" {
		errs = append(errs, "address is required")
	} else {
		scheme, rest, ok := strings.Cut(c.Address, "://")
		switch {
		case !ok || !isSupportedScheme(scheme):
			errs = append(errs, "address must use one of ws://, wss://, http://, https://")
		case rest == "":
			errs = append(errs, "address host is required")
		}
	}
	if c.Namespace == "" {
		errs = append(errs, "namespace is required")
	}
	if c.Username == "" {
		errs = append(errs, "username is required")
	}
	if c.Password == "" {
		errs = append(errs, "password is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Scheme returns the address scheme, or "" if the address has none.
func (c Config) Scheme() string {
	scheme, _, ok := strings.Cut(c.Address, "://")
	if !ok {
		return ""
	}
	return scheme
}

// RequiresTrust reports whether the address needs the external
// certificate-provisioning step before the transport may be opened.
func (c Config) RequiresTrust() bool {
	switch c.Scheme() {
	case SchemeWSS, SchemeHTTPS:
		return true
	default:
		return false
	}
}

// LogValue implements slog.LogValuer so the password never reaches the logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("address", c.Address),
		slog.String("namespace", c.Namespace),
		slog.String("username", c.Username),
	)
}

func isSupportedScheme(scheme string) bool {
	switch scheme {
	case SchemeWS, SchemeWSS, SchemeHTTP, SchemeHTTPS:
		return true
	default:
		return false
	}
}
