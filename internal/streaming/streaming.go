// Package streaming is a reusable WebSocket client shared by every
// feed the bot consumes: the public market-data channel and the
// authenticated user channel. The connect/backoff/ping state machine
// lives here once, parameterized by a Router that turns raw frames
// into typed messages, so adding a new frame type never means
// copy-pasting the connection loop.
package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// RouteKey identifies which handler goroutine a parsed Message is
// delivered to, e.g. a token ID for book events or "order"/"trade" for
// user events.
type RouteKey string

// Message is a parsed WebSocket frame, opaque to the Client itself.
type Message interface{}

// Router turns raw frames into typed Messages and assigns each one a
// RouteKey for dispatch.
type Router interface {
	Parse(raw []byte) (Message, error)
	RouteKey(msg Message) RouteKey
}

// AuthProvider supplies the frame sent immediately after connecting,
// for channels that require authentication (the user channel's signed
// subscribe payload).
type AuthProvider interface {
	AuthFrame(ctx context.Context) ([]byte, error)
}

// HeaderProvider supplies extra HTTP headers for the dial handshake.
type HeaderProvider interface {
	Headers(ctx context.Context) (http.Header, error)
}

// PassivePingDetector recognizes server-sent pings disguised as
// ordinary frames (Polymarket's bare "PING" text frame, which isn't
// valid JSON and never reaches the Router) and supplies the matching
// pong payload. Operates on the raw frame, checked before Router.Parse.
type PassivePingDetector interface {
	IsPing(raw []byte) bool
	PongFrame() []byte
}

// PongDetector recognizes the server's reply to our own actively-sent
// Heartbeat PING (Polymarket's bare "PONG" text frame), so the Client
// can tell a silently-dead connection from a merely quiet one: a socket
// can stay writable and still never deliver a reply. Operates on the
// raw frame, checked before Router.Parse, for the same reason as
// PassivePingDetector.
type PongDetector interface {
	IsPong(raw []byte) bool
}

// ReconnectStrategy computes the delay before reconnect attempt n (1-indexed).
type ReconnectStrategy interface {
	Delay(attempt int) time.Duration
	MaxAttempts() int // 0 means unlimited
}

// ExponentialBackoff doubles the delay each attempt, capped at Max.
type ExponentialBackoff struct {
	Base        time.Duration
	Max         time.Duration
	Attempts int
}

// Delay returns Base*2^(attempt-1), capped at Max.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}

// MaxAttempts returns the configured attempt cap.
func (b ExponentialBackoff) MaxAttempts() int { return b.Attempts }

// DefaultReconnectStrategy backs off 1s to 60s with an attempt cap, so
// a permanently dead endpoint eventually surfaces as a fatal Events()
// Error rather than retrying forever.
func DefaultReconnectStrategy() ReconnectStrategy {
	return ExponentialBackoff{Base: time.Second, Max: 60 * time.Second, Attempts: 10}
}

// Event is delivered on Client.Events() so callers can observe
// connection state without threading it through every Message.
type Event struct {
	Kind    EventKind
	Attempt int // set for Reconnecting
	Err     error
}

// EventKind enumerates the states a Client reports.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	Reconnecting
	ErrorEvent
)

// Heartbeat configures an actively-sent keepalive frame.
type Heartbeat struct {
	Interval time.Duration
	Payload  []byte
}

// Config builds a Client. Construct with NewConfig and chain the
// With... setters.
type Config struct {
	URL                  string
	Router               Router
	Subscriptions        [][]byte // frames sent on (re)connect, in order, after auth
	Auth                 AuthProvider
	Headers              HeaderProvider
	Heartbeat            *Heartbeat
	PingDetector         PassivePingDetector
	PongDetector         PongDetector
	PongTimeout          time.Duration
	Reconnect            ReconnectStrategy
	ReconnectDelayOffset time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	HandlerBufferSize    int

	handlers map[RouteKey]func(Message)
	fallback func(Message)
}

// NewConfig builds a Config with working defaults: 90s read timeout,
// 10s write timeout, 256-message handler buffers, exponential backoff
// capped at 60s/10 attempts.
func NewConfig(url string, router Router) *Config {
	return &Config{
		URL:               url,
		Router:            router,
		Reconnect:         DefaultReconnectStrategy(),
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandlerBufferSize: 256,
		handlers:          make(map[RouteKey]func(Message)),
	}
}

// WithAuth sets the AuthProvider.
func (c *Config) WithAuth(a AuthProvider) *Config { c.Auth = a; return c }

// WithHeaders sets the HeaderProvider.
func (c *Config) WithHeaders(h HeaderProvider) *Config { c.Headers = h; return c }

// WithHeartbeat sets an actively-sent keepalive frame.
func (c *Config) WithHeartbeat(interval time.Duration, payload []byte) *Config {
	c.Heartbeat = &Heartbeat{Interval: interval, Payload: payload}
	return c
}

// WithPingDetector sets the PassivePingDetector.
func (c *Config) WithPingDetector(d PassivePingDetector) *Config { c.PingDetector = d; return c }

// WithPongDetector sets the PongDetector and the timeout to wait for a
// reply after each Heartbeat PING before the connection is presumed
// dead and forced to reconnect. Only takes effect alongside a
// configured Heartbeat.
func (c *Config) WithPongDetector(d PongDetector, timeout time.Duration) *Config {
	c.PongDetector = d
	c.PongTimeout = timeout
	return c
}

// WithReconnect overrides the ReconnectStrategy.
func (c *Config) WithReconnect(r ReconnectStrategy) *Config { c.Reconnect = r; return c }

// WithSubscriptions sets the frames sent on every (re)connect.
func (c *Config) WithSubscriptions(frames ...[]byte) *Config {
	c.Subscriptions = frames
	return c
}

// OnRoute registers a handler for one RouteKey.
func (c *Config) OnRoute(key RouteKey, handler func(Message)) *Config {
	c.handlers[key] = handler
	return c
}

// OnUnrouted registers a fallback handler for Messages whose RouteKey
// has no registered handler.
func (c *Config) OnUnrouted(handler func(Message)) *Config {
	c.fallback = handler
	return c
}

// Client runs the connect/auth/subscribe/read/reconnect state machine
// for one WebSocket endpoint. One handler goroutine per registered
// RouteKey drains a buffered channel so a slow consumer on one route
// (e.g. book events for a busy token) never blocks another.
type Client struct {
	cfg Config

	connMu sync.Mutex
	conn   *websocket.Conn

	events   chan Event
	shutdown atomic.Bool
	lastPong atomic.Int64 // UnixNano of the last message PongDetector recognized

	routeChans map[RouteKey]chan Message
	routeWG    sync.WaitGroup

	logger *slog.Logger
}

// NewClient builds a Client from cfg. Handler goroutines are started
// lazily by Run.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:        *cfg,
		events:     make(chan Event, 32),
		routeChans: make(map[RouteKey]chan Message),
		logger:     logger.With("component", "streaming"),
	}
}

// Events returns the channel of connection-state and error events.
func (c *Client) Events() <-chan Event { return c.events }

// Run drives Disconnected -> Connecting -> Connected <-> Reconnecting
// -> ShuttingDown until ctx is cancelled or Shutdown is called.
func (c *Client) Run(ctx context.Context) error {
	for key, handler := range c.cfg.handlers {
		ch := make(chan Message, c.cfg.HandlerBufferSize)
		c.routeChans[key] = ch
		c.routeWG.Add(1)
		go c.runRoute(ctx, handler, ch)
	}

	attempt := 0
	for {
		if c.shutdown.Load() || ctx.Err() != nil {
			c.routeWG.Wait()
			return ctx.Err()
		}

		attempt++
		err := c.connectAndRead(ctx)
		if c.shutdown.Load() || ctx.Err() != nil {
			c.routeWG.Wait()
			return ctx.Err()
		}

		c.emit(Event{Kind: Disconnected, Err: err})

		max := c.cfg.Reconnect.MaxAttempts()
		if max > 0 && attempt >= max {
			c.emit(Event{Kind: ErrorEvent, Err: fmt.Errorf("streaming: giving up after %d attempts: %w", attempt, err)})
			c.routeWG.Wait()
			return fmt.Errorf("streaming: exhausted reconnect attempts: %w", err)
		}

		delay := c.cfg.Reconnect.Delay(attempt) + c.cfg.ReconnectDelayOffset
		c.emit(Event{Kind: Reconnecting, Attempt: attempt, Err: err})

		select {
		case <-ctx.Done():
			c.routeWG.Wait()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Send writes a raw frame to the current connection.
func (c *Client) Send(raw []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("streaming: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Shutdown stops the client: sets the shutdown flag, closes the
// connection, and waits up to 100ms for route handler goroutines to
// drain before returning.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdown.Store(true)
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	for _, ch := range c.routeChans {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		c.routeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
	}
	return nil
}

func (c *Client) connectAndRead(ctx context.Context) error {
	var header http.Header
	if c.cfg.Headers != nil {
		h, err := c.cfg.Headers.Headers(ctx)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		header = h
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		conn.Close()
		c.conn = nil
		c.connMu.Unlock()
	}()

	if c.cfg.Auth != nil {
		frame, err := c.cfg.Auth.AuthFrame(ctx)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		if err := c.writeRaw(frame); err != nil {
			return fmt.Errorf("auth send: %w", err)
		}
	}

	for _, frame := range c.cfg.Subscriptions {
		if err := c.writeRaw(frame); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.emit(Event{Kind: Connected})
	c.logger.Info("streaming connected", "url", c.cfg.URL)

	var hbCancel context.CancelFunc
	if c.cfg.Heartbeat != nil {
		var hbCtx context.Context
		hbCtx, hbCancel = context.WithCancel(ctx)
		go c.heartbeatLoop(hbCtx, *c.cfg.Heartbeat)
	}
	if hbCancel != nil {
		defer hbCancel()
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	// Passive pings/pongs are bare text frames, not JSON, so they must
	// be checked before Router.Parse rather than after: Parse would
	// just fail on them and they'd be logged as unparsable and dropped.
	if c.cfg.PingDetector != nil && c.cfg.PingDetector.IsPing(raw) {
		if err := c.writeRaw(c.cfg.PingDetector.PongFrame()); err != nil {
			c.logger.Warn("pong send failed", "error", err)
		}
		return
	}

	if c.cfg.PongDetector != nil && c.cfg.PongDetector.IsPong(raw) {
		c.lastPong.Store(time.Now().UnixNano())
		return
	}

	msg, err := c.cfg.Router.Parse(raw)
	if err != nil {
		c.logger.Debug("unparsable frame", "error", err, "len", len(raw))
		return
	}

	key := c.cfg.Router.RouteKey(msg)
	ch, ok := c.routeChans[key]
	if !ok {
		if c.cfg.fallback != nil {
			c.cfg.fallback(msg)
		}
		return
	}
	select {
	case ch <- msg:
	default:
		c.logger.Warn("route handler buffer full, dropping message", "route", key)
	}
}

func (c *Client) runRoute(ctx context.Context, handler func(Message), ch chan Message) {
	defer c.routeWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handler(msg)
		case <-time.After(50 * time.Millisecond):
			if c.shutdown.Load() {
				return
			}
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, hb Heartbeat) {
	ticker := time.NewTicker(hb.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sentAt := time.Now()
			if err := c.writeRaw(hb.Payload); err != nil {
				c.logger.Warn("heartbeat send failed", "error", err)
				return
			}
			if c.cfg.PongDetector != nil && c.cfg.PongTimeout > 0 {
				go c.awaitPong(ctx, sentAt)
			}
		}
	}
}

// awaitPong waits up to cfg.PongTimeout for a pong observed at or after
// sentAt; if none arrives, the connection is presumed dead (writable
// but not actually round-tripping) and is closed so the blocked
// ReadMessage call in connectAndRead unblocks into the reconnect path.
func (c *Client) awaitPong(ctx context.Context, sentAt time.Time) {
	timer := time.NewTimer(c.cfg.PongTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		if c.lastPong.Load() >= sentAt.UnixNano() {
			return
		}
		c.logger.Warn("pong timeout, forcing reconnect", "timeout", c.cfg.PongTimeout)
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.connMu.Unlock()
	}
}

func (c *Client) writeRaw(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("streaming: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
