// Package wsconn provides a WebSocket client with reconnection.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// ErrNotConnected is returned by Send while there is no live connection.
var ErrNotConnected = errors.New("wsconn: not connected")

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	ReadTimeout    time.Duration // 0 = no read deadline
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0, // infinite
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is told about every state change.
type StateHandler func(state State, err error)

// ConnectHandler runs after every successful (re)connect, typically to
// resend subscriptions.
type ConnectHandler func(ctx context.Context) error

// Client is a WebSocket client that reconnects with exponential backoff.
type Client struct {
	config Config

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     State
	onMessage MessageHandler
	onState   StateHandler
	onConnect ConnectHandler

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("wsconn: url is required")
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: config,
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the inbound message handler.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnStateChange sets the state change handler.
func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// OnConnect sets the handler run after each successful connect.
func (c *Client) OnConnect(h ConnectHandler) {
	c.mu.Lock()
	c.onConnect = h
	c.mu.Unlock()
}

// Connect makes a single connection attempt.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return errors.New("wsconn: client closed")
	}
	c.setState(StateConnecting, nil)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected, err)
		return err
	}
	return nil
}

// ConnectWithRetry connects, retrying with backoff until ctx is done or
// MaxReconnects attempts have failed.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		if c.ctx.Err() != nil {
			return backoff.Permanent(errors.New("wsconn: client closed"))
		}
		return c.Connect(ctx)
	}, c.policy(ctx))
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     c.config.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         c.config.MaxBackoff,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	var b backoff.BackOff = exp
	if c.config.MaxReconnects > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.config.MaxReconnects))
	}
	return backoff.WithContext(b, ctx)
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("wsconn %s: dial: %w", c.config.Name, err)
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		conn.CloseNow()
		return errors.New("wsconn: client closed")
	}
	c.conn = conn
	onConnect := c.onConnect
	c.mu.Unlock()

	if onConnect != nil {
		if err := onConnect(ctx); err != nil {
			c.detach(conn)
			conn.CloseNow()
			return fmt.Errorf("wsconn %s: on connect: %w", c.config.Name, err)
		}
	}

	c.setState(StateConnected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)
	if c.config.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(conn)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		readCtx, cancel := c.ctx, context.CancelFunc(func() {})
		if c.config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		}
		_, data, err := conn.Read(readCtx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			conn.CloseNow()
			c.detach(conn)
			c.setState(StateReconnecting, err)
			c.reconnect()
			return
		}

		c.mu.RLock()
		h := c.onMessage
		c.mu.RUnlock()
		if h != nil {
			h(c.ctx, data)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			current := c.conn
			c.mu.RUnlock()
			if current != conn {
				return
			}

			ctx, cancel := context.WithTimeout(c.ctx, c.config.PongTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				conn.Close(websocket.StatusGoingAway, "pong timeout")
				return
			}
		}
	}
}

// reconnect runs on the read goroutine of the dead connection. It waits
// before every attempt, the first included.
func (c *Client) reconnect() {
	b := c.policy(c.ctx)
	b.Reset()

	var lastErr error
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if c.ctx.Err() == nil {
				c.setState(StateDisconnected, lastErr)
			}
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if lastErr = c.dial(c.ctx); lastErr == nil {
			return
		}
	}
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// SendJSON marshals v and sends it.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn: marshal: %w", err)
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client has a live connection.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close gracefully closes the WebSocket connection. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed, nil)
		c.cancel()

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		c.wg.Wait()
	})
	return nil
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(state, err)
	}
}
