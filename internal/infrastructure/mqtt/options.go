package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the CONNACK.
	defaultConnectTimeout = 30 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultClientIDPrefix is used when Options.ClientIDPrefix is empty.
	defaultClientIDPrefix = "pubsubd"

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// subackFailure is the SUBACK return code for a rejected subscription.
	subackFailure = 0x80
)

// Options configures the MQTT transport. The zero value is usable.
type Options struct {
	// ClientIDPrefix is joined with a random suffix for every connection,
	// so a reconnect never collides with a half-closed previous session.
	ClientIDPrefix string

	// ConnectTimeout bounds the CONNECT/CONNACK exchange.
	ConnectTimeout time.Duration

	// KeepAlive is the MQTT keepalive interval.
	KeepAlive time.Duration

	// QoS is the maximum QoS requested for every subscription (0, 1 or 2).
	QoS byte

	// TLSConfig is used for wss:// connections. Nil means system roots.
	TLSConfig *tls.Config
}

// validate fills defaults and checks ranges.
func (o *Options) validate() error {
	if o.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if o.ClientIDPrefix == "" {
		o.ClientIDPrefix = defaultClientIDPrefix
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	return nil
}

// brokerURL maps a client address onto a paho WebSocket broker URL.
//
// The client accepts ws, wss, http and https; paho only dials ws and wss,
// so http and https are rewritten to their WebSocket equivalents.
func brokerURL(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	switch u.Scheme {
	case pubsub.SchemeWS, pubsub.SchemeWSS:
	case pubsub.SchemeHTTP:
		u.Scheme = pubsub.SchemeWS
	case pubsub.SchemeHTTPS:
		u.Scheme = pubsub.SchemeWSS
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidAddress)
	}
	return u.String(), nil
}

// buildClientOptions creates paho MQTT options for one connection attempt.
//
// This configures:
//   - Broker URL (ws:// or wss://)
//   - A fresh client ID
//   - Credentials from the session config
//   - Clean session, in-order delivery
//   - No automatic reconnect: reconnecting is the caller's decision
//   - TLS configuration for wss://
func buildClientOptions(cfg pubsub.Config, opts Options) (*pahomqtt.ClientOptions, error) {
	broker, err := brokerURL(cfg.Address)
	if err != nil {
		return nil, err
	}

	co := pahomqtt.NewClientOptions()
	co.AddBroker(broker)
	co.SetClientID(opts.ClientIDPrefix + "-" + uuid.NewString()[:8])
	co.SetUsername(cfg.Username)
	co.SetPassword(cfg.Password)

	// Clean session - the client replays its own subscriptions after Up.
	co.SetCleanSession(true)
	co.SetOrderMatters(true)

	co.SetAutoReconnect(false)
	co.SetConnectRetry(false)
	co.SetConnectTimeout(opts.ConnectTimeout)
	co.SetKeepAlive(opts.KeepAlive)

	if cfg.RequiresTrust() {
		tlsConfig := opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tlsMinVersion}
		}
		co.SetTLSConfig(tlsConfig)
	}

	return co, nil
}
