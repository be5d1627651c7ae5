// Package stream maintains the push connection to the ETL monitoring endpoint.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/narvanalabs/cnpj-monitor/internal/models"
)

// DefaultReconnectDelay is the fixed wait between a close and the next attempt.
const DefaultReconnectDelay = 5 * time.Second

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 10 * time.Second

// Conn is the receive side of a stream connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// Handler receives decoded stream events in delivery order.
type Handler interface {
	HandleLog(entry models.LogEntry)
	HandleStatus(snap models.StatusSnapshot)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s (status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return conn, nil
}

// Options configures a Connector.
type Options struct {
	// URL is the resolved stream endpoint (see ResolveEndpoint).
	URL string
	// Token is sent as a bearer token when set.
	Token string
	// ReconnectDelay is the wait after every close. Defaults to 5s.
	ReconnectDelay time.Duration
	// ReconnectJitter adds up to this fraction of ReconnectDelay. Zero disables it.
	ReconnectJitter float64
	// DialTimeout bounds one attempt. Defaults to 10s.
	DialTimeout time.Duration
	// Dialer defaults to WebsocketDialer.
	Dialer Dialer
	// OnStateChange is called with true on open and false on close. Optional.
	OnStateChange func(live bool)
	Logger        *slog.Logger
}

// Connector keeps at most one live stream connection and re-establishes it a
// fixed delay after every close, without a retry cap. Close cancels the pending
// reconnect and the live connection.
type Connector struct {
	opts    Options
	handler Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	conn       Conn
	connID     string
	timer      *time.Timer
	connecting bool
	closed     bool
	attempts   int
	wg         sync.WaitGroup
}

// NewConnector creates a Connector delivering events to handler.
func NewConnector(opts Options, handler Handler) *Connector {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		opts:    opts,
		handler: handler,
		logger:  logger.With("component", "stream"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect makes one connection attempt and blocks until it succeeds or fails.
// It is a no-op while a connection is live or being dialed, and after Close.
// A failed attempt is treated like a close and schedules a reconnect.
func (c *Connector) Connect() {
	c.mu.Lock()
	if c.closed || c.conn != nil || c.connecting {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		// A manual connect supersedes the pending reconnect.
		c.timer.Stop()
		c.timer = nil
	}
	c.connecting = true
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	dialCtx, cancel := context.WithTimeout(c.ctx, c.opts.DialTimeout)
	conn, err := c.opts.Dialer.Dial(dialCtx, c.opts.URL, header)
	cancel()

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.logger.Warn("stream connection failed", "url", c.opts.URL, "attempt", attempt, "error", err)
		c.scheduleReconnect()
		return
	}
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	connID := uuid.New().String()
	c.conn = conn
	c.connID = connID
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("stream connected", "url", c.opts.URL, "connection_id", connID, "attempt", attempt)
	c.notify(true)

	go c.readLoop(conn, connID)
}

// readLoop handles messages in delivery order until the connection ends.
func (c *Connector) readLoop(conn Conn, connID string) {
	defer c.wg.Done()
	logger := c.logger.With("connection_id", connID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, logger, err)
			return
		}
		c.dispatch(raw, logger)
	}
}

// dispatch decodes one message and hands it to the handler. Malformed payloads
// and handler panics are logged and dropped; the read loop keeps going.
func (c *Connector) dispatch(raw []byte, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("stream handler panicked", "panic", r)
		}
	}()

	env, err := DecodeEnvelope(raw)
	if err != nil {
		logger.Warn("dropping stream message", "error", err, "size", len(raw))
		return
	}

	switch env.Type {
	case EventLog:
		data := env.Data
		if len(data) == 0 {
			data = raw
		}
		c.handler.HandleLog(DecodeLog(data, time.Now()))
	case EventStatus, EventStatsUpdate:
		snap, err := DecodeStatus(env.Data)
		if err != nil {
			logger.Warn("dropping stream message", "type", env.Type, "error", err)
			return
		}
		c.handler.HandleStatus(snap)
	default:
		logger.Debug("ignoring stream event", "type", env.Type)
	}
}

func (c *Connector) handleClose(conn Conn, logger *slog.Logger, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connID = ""
	}
	closed := c.closed
	c.mu.Unlock()

	conn.Close()
	c.notify(false)

	if closed {
		logger.Debug("stream closed during teardown")
		return
	}

	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Info("stream closed by server", "reconnect_in", c.opts.ReconnectDelay)
	} else {
		logger.Warn("stream connection lost", "error", cause, "reconnect_in", c.opts.ReconnectDelay)
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms exactly one reconnect timer.
func (c *Connector) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.timer != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(c.nextDelay(), func() {
		c.mu.Lock()
		if c.timer == t {
			c.timer = nil
		}
		c.mu.Unlock()
		c.Connect()
	})
	c.timer = t
}

func (c *Connector) nextDelay() time.Duration {
	delay := c.opts.ReconnectDelay
	if c.opts.ReconnectJitter > 0 {
		delay += time.Duration(rand.Float64() * c.opts.ReconnectJitter * float64(delay))
	}
	return delay
}

func (c *Connector) notify(live bool) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(live)
	}
}

// Live reports whether a connection is currently open.
func (c *Connector) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ConnectionID returns the ID of the live connection, empty when disconnected.
func (c *Connector) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Attempts returns the number of connection attempts made so far.
func (c *Connector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ReconnectPending reports whether a reconnect timer is armed.
func (c *Connector) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Close cancels the pending reconnect, closes the live connection and waits
// for the read loop to exit. Must not be called from a Handler method.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connID = ""
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()

	c.logger.Debug("stream connector closed")
	return nil
}
