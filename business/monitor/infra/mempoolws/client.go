// Package mempoolws receives address activity pushes from the mempool.space
// WebSocket API and turns them into poll hints for the balance monitor.
package mempoolws

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/satsend/internal/apperror"
	"github.com/fd1az/satsend/internal/logger"
	"github.com/fd1az/satsend/internal/wsconn"
)

const meterName = "satsend/mempoolws"

// HintFunc is called with an address that saw activity.
type HintFunc func(address string)

// Client keeps a track-addresses subscription alive across reconnects.
type Client struct {
	url    string
	logger logger.LoggerInterface
	conn   *wsconn.Client

	mu        sync.RWMutex
	addresses []string
	onHint    HintFunc

	pushes      metric.Int64Counter
	parseErrors metric.Int64Counter
}

// NewClient creates a client for the WebSocket endpoint at url, e.g.
// wss://mempool.space/testnet/api/v1/ws.
func NewClient(url string, log logger.LoggerInterface) (*Client, error) {
	cfg := wsconn.DefaultConfig(url, "mempool")
	conn, err := wsconn.New(cfg)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("mempool websocket"))
	}

	c := &Client{url: url, logger: log, conn: conn}

	meter := otel.Meter(meterName)
	c.pushes, _ = meter.Int64Counter("mempoolws_pushes_total",
		metric.WithDescription("Address activity pushes received"))
	c.parseErrors, _ = meter.Int64Counter("mempoolws_parse_errors_total",
		metric.WithDescription("Push frames that could not be parsed"))

	conn.OnMessage(c.handleMessage)
	conn.OnConnect(c.subscribe)
	conn.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			c.logger.Debug(context.Background(), "mempool websocket state", "state", state, "error", err)
			return
		}
		c.logger.Debug(context.Background(), "mempool websocket state", "state", state)
	})

	return c, nil
}

// OnHint sets the function told about address activity.
func (c *Client) OnHint(fn HintFunc) {
	c.mu.Lock()
	c.onHint = fn
	c.mu.Unlock()
}

// Start connects in the background, retrying until ctx ends.
func (c *Client) Start(ctx context.Context) {
	go func() {
		if err := c.conn.ConnectWithRetry(ctx); err != nil {
			c.logger.Warn(ctx, "mempool websocket unavailable, relying on polling", "url", c.url, "error", err)
			return
		}
		c.logger.Info(ctx, "mempool websocket connected", "url", c.url)
	}()
}

// Track replaces the tracked address set. When disconnected the set is
// sent on the next connect.
func (c *Client) Track(ctx context.Context, addresses []string) error {
	c.mu.Lock()
	c.addresses = slices.Clone(addresses)
	c.mu.Unlock()

	if !c.conn.IsConnected() {
		return apperror.New(apperror.CodePushUnavailable, apperror.WithContext("not connected"))
	}
	return c.subscribe(ctx)
}

// Connected reports whether the push channel is live.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Close stops the client.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) subscribe(ctx context.Context) error {
	c.mu.RLock()
	req := trackRequest{TrackAddresses: slices.Clone(c.addresses)}
	c.mu.RUnlock()

	if req.TrackAddresses == nil {
		req.TrackAddresses = []string{}
	}
	return c.conn.SendJSON(ctx, req)
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg pushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.parseErrors.Add(ctx, 1)
		c.logger.Debug(ctx, "failed to parse push", "error", err, "data", string(data[:min(len(data), 200)]))
		return
	}

	if msg.Error != "" {
		c.logger.Warn(ctx, "mempool rejected address subscription", "error", msg.Error)
		return
	}

	for _, address := range c.active(msg) {
		c.pushes.Add(ctx, 1)
		c.hint(address)
	}
}

// active lists the tracked addresses a push concerns. Frames that do not
// name an address concern every tracked address.
func (c *Client) active(msg pushMessage) []string {
	if len(msg.MultiAddress) > 0 {
		out := make([]string, 0, len(msg.MultiAddress))
		for address, activity := range msg.MultiAddress {
			if !activity.empty() {
				out = append(out, address)
			}
		}
		slices.Sort(out)
		return out
	}
	if len(msg.AddressTxs) > 0 || len(msg.BlockTxs) > 0 {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return slices.Clone(c.addresses)
	}
	return nil
}

func (c *Client) hint(address string) {
	c.mu.RLock()
	fn := c.onHint
	c.mu.RUnlock()
	if fn != nil {
		fn(address)
	}
}
