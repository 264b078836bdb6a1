package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client records pubsubd telemetry in InfluxDB v2. Writes are batched and
// never block the caller; failed batches are reported to the SetOnError
// callback. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect opens a batched writer against cfg.URL once the server answers
// /ping. It returns ErrDisabled when telemetry is switched off and wraps
// ErrConnectionFailed when the server cannot be reached.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	if err := ping(context.Background(), client, defaultConnectTimeout); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go c.handleWriteErrors(c.writeAPI.Errors())
	return c, nil
}

// writeOptions applies batch size and flush interval, filling in defaults
// for unset values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch, flush := cfg.BatchSize, cfg.FlushInterval
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	// #nosec G115 -- both values are positive
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(time.Duration(flush) * time.Second / time.Millisecond))
}

func ping(ctx context.Context, client influxdb2.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !healthy:
		return fmt.Errorf("ping: server not healthy")
	}
	return nil
}

// handleWriteErrors runs until the write API closes its error channel.
func (c *Client) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		report := c.onError
		c.mu.RUnlock()
		if report != nil {
			report(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server within defaultPingTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client, defaultPingTimeout); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush sends buffered points now. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
