// Package trust provisions TLS trust for secure broker addresses.
//
// Before a wss:// or https:// session is opened, the client pauses with
// pubsub.EventTrustRequired. The Provisioner then fetches a small resource
// (by default /crossdomain.xml) from the broker host over HTTPS. Any HTTP
// response proves the TLS handshake succeeds with the configured roots, and
// the client is told to continue; a handshake or network failure aborts the
// connection attempt with the reason.
package trust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	defaultCheckPath = "/crossdomain.xml"
	defaultTimeout   = 10 * time.Second

	// maxCheckBody caps how much of the check response is drained.
	maxCheckBody = 64 << 10
)

// Config configures a Provisioner.
type Config struct {
	// CheckPath is requested on the broker host. Default "/crossdomain.xml".
	CheckPath string

	// CAFile is an optional PEM bundle added to the system roots.
	CAFile string

	// Timeout bounds one check. Default 10s.
	Timeout time.Duration
}

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

// Trustee is the side of pubsub.Client the provisioner drives.
type Trustee interface {
	TrustReady() error
	AbortTrust(reason error) error
}

// Provisioner checks broker hosts over HTTPS.
type Provisioner struct {
	checkPath string
	tlsConfig *tls.Config
	client    *http.Client
	logger    Logger
}

// New builds a Provisioner. The same TLS configuration is exposed through
// TLSConfig so the broker transport trusts exactly what the check trusted.
func New(cfg Config, logger Logger) (*Provisioner, error) {
	if cfg.CheckPath == "" {
		cfg.CheckPath = defaultCheckPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = nopLogger{}
	}

	tlsConfig, err := buildTLSConfig(cfg.CAFile)
	if err != nil {
		return nil, err
	}

	return &Provisioner{
		checkPath: cfg.CheckPath,
		tlsConfig: tlsConfig,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:   tlsConfig,
				DisableKeepAlives: true,
			},
			// The check is about the broker host; never follow it elsewhere.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}, nil
}

func buildTLSConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCAFile, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrCAFile, caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// TLSConfig returns a copy of the TLS configuration used for probing.
func (p *Provisioner) TLSConfig() *tls.Config {
	return p.tlsConfig.Clone()
}

// CheckURL returns the HTTPS URL checked for a broker address.
func (p *Provisioner) CheckURL(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidAddress, address)
	}
	target := url.URL{Scheme: "https", Host: u.Host, Path: p.checkPath}
	return target.String(), nil
}

// Check fetches the check URL for address. Any HTTP status counts as
// success: only the TLS handshake matters.
func (p *Provisioner) Check(ctx context.Context, address string) error {
	target, err := p.CheckURL(address)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxCheckBody)) //nolint:errcheck // Draining only

	p.logger.Info("broker host trusted", "url", target, "status", resp.StatusCode)
	return nil
}

// Provision checks address and resumes or aborts the paused connect on t.
// It blocks for at most the configured timeout.
//
// Returns:
//   - error: the check failure, or nil when t was told to continue
func (p *Provisioner) Provision(ctx context.Context, address string, t Trustee) error {
	if err := p.Check(ctx, address); err != nil {
		p.logger.Warn("trust provisioning failed", "address", address, "error", err)
		if abortErr := t.AbortTrust(err); abortErr != nil {
			p.logger.Info("connect attempt no longer waiting for trust", "error", abortErr)
		}
		return err
	}

	if err := t.TrustReady(); err != nil {
		// Disconnect was called while probing.
		p.logger.Info("connect attempt no longer waiting for trust", "error", err)
	}
	return nil
}
