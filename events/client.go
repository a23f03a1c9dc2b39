// Package events implements the client for the Clauderon server-push
// event stream. A Client keeps a single long-lived WebSocket to the
// events endpoint, forwards each domain event to subscribers without
// interpreting it, and heals the connection: an unexpected close
// schedules one reconnect attempt after a fixed delay, repeating until
// the stream is back or Disconnect is called.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clauderon/clauderon-go/transport"
)

const (
	defaultReconnectDelay   = time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// Options configures an events Client.
type Options struct {
	// BaseURL is the Clauderon server address. It may use an http, https,
	// ws or wss scheme. transport.DefaultBaseURL is used when empty.
	BaseURL string

	// HandshakeTimeout bounds the WebSocket dial. Defaults to 10 seconds.
	HandshakeTimeout time.Duration

	// ReconnectDelay is the pause before a reconnect attempt after an
	// unexpected close. Defaults to one second.
	ReconnectDelay time.Duration

	// DisableReconnect turns automatic reconnection off. By default the
	// client reconnects after every close it did not initiate.
	DisableReconnect bool
}

// Client is an event stream client. Use NewClient to create one; the zero
// value is not usable.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	conn    *conn       // current connection, nil while idle
	closed  bool        // set by Disconnect, cleared by Connect
	started bool        // set by the first Connect, distinguishes idle from closed
	retry   *time.Timer // pending reconnect, nil when none

	connected    transport.Hooks
	disconnected transport.Hooks
	events       transport.Listeners[json.RawMessage]
	errors       transport.Listeners[error]
}

// conn is one WebSocket connection to the events endpoint. The client
// owns at most one; anything a superseded conn reports afterwards is
// dropped by identity checks against Client.conn.
type conn struct {
	cancel context.CancelFunc // aborts an in-flight dial

	// ws and open are written under Client.mu once the dial completes and
	// never change afterwards.
	ws   *websocket.Conn
	open bool
}

// NewClient creates an events client. The logger receives local
// diagnostics such as reconnect scheduling; pass zerolog.Nop() to
// discard them.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = transport.DefaultBaseURL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	return &Client{opts: opts, log: logger}
}

// Connect opens the event stream. It is idempotent: while a connection
// is open or being opened, calling it again does nothing, so repeated
// calls never create parallel connections or duplicate connected
// notifications. It also re-arms auto-reconnect after a Disconnect.
// Connect returns immediately; the dial runs in the background and its
// outcome arrives through the connected or error listeners. ctx bounds
// the dial only, not the lifetime of the connection.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	c.closed = false
	c.stopRetryLocked()
	if c.conn != nil {
		c.mu.Unlock()
		return
	}
	dialCtx, cancel := context.WithCancel(ctx)
	cn := &conn{cancel: cancel}
	c.conn = cn
	c.started = true
	c.mu.Unlock()

	go c.dial(dialCtx, cn)
}

// Disconnect closes the stream and cancels any pending reconnect. No
// reconnect happens afterwards until Connect is called again. Calling it
// while not connected is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.stopRetryLocked()
	cn := c.conn
	c.conn = nil
	var ws *websocket.Conn
	if cn != nil {
		ws = cn.ws
	}
	c.mu.Unlock()

	if cn == nil {
		return
	}
	cn.cancel()
	if ws != nil {
		_ = ws.Close()
	}
	c.disconnected.Emit()
}

// stopRetryLocked cancels a pending reconnect timer. Caller holds c.mu.
func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) dial(ctx context.Context, cn *conn) {
	defer cn.cancel()

	wsURL, err := transport.EventsURL(c.opts.BaseURL)
	if err != nil {
		c.failDial(cn, &transport.TransportError{Kind: transport.KindSocket, Err: err})
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.failDial(cn, &transport.TransportError{Kind: transport.KindSocket, Err: err})
		return
	}

	c.mu.Lock()
	if c.conn != cn {
		// Superseded while dialing.
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	cn.ws = ws
	cn.open = true
	c.mu.Unlock()

	c.log.Debug().Msg("events connected")
	c.connected.Emit()

	go c.readLoop(cn)
}

// failDial reports a dial failure for cn unless it was superseded. A
// failed dial counts as an unexpected close for reconnect purposes, so
// an unreachable server is retried until Disconnect.
func (c *Client) failDial(cn *conn, err error) {
	c.mu.Lock()
	current := c.conn == cn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if !current {
		return
	}
	c.log.Warn().Err(err).Msg("events connect failed")
	c.errors.Emit(err)
	c.scheduleReconnect()
}

func (c *Client) readLoop(cn *conn) {
	for {
		_, raw, err := cn.ws.ReadMessage()
		if err != nil {
			c.handleClose(cn, err)
			return
		}
		c.handleFrame(cn, raw)
	}
}

func (c *Client) handleClose(cn *conn, err error) {
	c.mu.Lock()
	current := c.conn == cn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if !current {
		// A newer connection took over, or Disconnect already reported this.
		return
	}

	if !isExpectedClose(err) {
		c.errors.Emit(&transport.TransportError{Kind: transport.KindSocket, Err: err})
	}
	c.log.Debug().Msg("events disconnected")
	c.disconnected.Emit()
	c.scheduleReconnect()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// scheduleReconnect arms the reconnect timer. At most one timer is ever
// pending: the call is a no-op while one is armed, and the timer clears
// its own reference just before the attempt fires so the next close can
// schedule again. Disabled by Options.DisableReconnect and by
// Disconnect.
func (c *Client) scheduleReconnect() {
	if c.opts.DisableReconnect {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.retry != nil {
		return
	}
	c.log.Debug().Dur("delay", c.opts.ReconnectDelay).Msg("events reconnect scheduled")
	c.retry = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		c.retry = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			// Disconnect won the race with the timer.
			return
		}
		c.Connect(context.Background())
	})
}

// handleFrame unwraps one inbound envelope. The subscription handshake
// is swallowed, event payloads are forwarded verbatim, and unknown
// frame types are ignored.
func (c *Client) handleFrame(cn *conn, raw []byte) {
	if !c.isCurrent(cn) {
		return
	}

	var frame struct {
		Type    string          `json:"type"`
		Event   json.RawMessage `json:"event"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.errors.Emit(&transport.TransportError{Kind: transport.KindParse, Err: err})
		return
	}

	switch frame.Type {
	case transport.FrameConnected:
		c.log.Debug().Str("message", frame.Message).Msg("events subscription acknowledged")
	case transport.FrameEvent:
		c.events.Emit(frame.Event)
	default:
		// Not addressed to this client; ignore.
	}
}

func (c *Client) isCurrent(cn *conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == cn
}

// IsConnected reports whether the event stream is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.open
}

// Status reports where the client is in its connection lifecycle. A
// client waiting out the delay before a reconnect attempt counts as
// connecting.
func (c *Client) Status() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conn != nil && c.conn.open:
		return transport.StatusOpen
	case c.conn != nil || c.retry != nil:
		return transport.StatusConnecting
	case c.started:
		return transport.StatusClosed
	default:
		return transport.StatusIdle
	}
}

// OnConnected registers fn to run when the stream opens, including after
// an automatic reconnect.
func (c *Client) OnConnected(fn func()) transport.Disposer {
	return c.connected.Add(fn)
}

// OnDisconnected registers fn to run when the stream closes.
func (c *Client) OnDisconnected(fn func()) transport.Disposer {
	return c.disconnected.Add(fn)
}

// OnEvent registers fn to receive each domain event exactly as the
// server sent it. Use ParsePayload for a typed view.
func (c *Client) OnEvent(fn func(event json.RawMessage)) transport.Disposer {
	return c.events.Add(fn)
}

// OnError registers fn to receive transport errors.
func (c *Client) OnError(fn func(err error)) transport.Disposer {
	return c.errors.Add(fn)
}
