// Package console implements the streaming terminal client for Clauderon
// sessions. A Client owns at most one WebSocket connection at a time,
// sends keystrokes, resizes and signals, and turns the server's
// base64-encoded output frames into a continuous text stream. Corrupt
// frames are dropped and reported without interrupting the stream, and
// error events are rate-limited so a misbehaving server cannot flood the
// consumer.
package console

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clauderon/clauderon-go/pkg/utils"
	"github.com/clauderon/clauderon-go/transport"
)

// Limits applied to inbound output frames.
const (
	// MaxDataLength is the largest accepted output payload, measured in
	// base64 characters before decoding. Larger frames are dropped with an
	// oversize error, bounding the memory one frame can claim.
	MaxDataLength = 1_048_576

	// MaxErrorsPerSecond caps how many error events are delivered to
	// listeners per window; the rest are logged locally.
	MaxErrorsPerSecond = 5

	errorWindow = time.Second
	sampleLimit = 100

	defaultHandshakeTimeout = 10 * time.Second
)

// base64Pattern accepts the standard alphabet with up to two trailing
// padding characters. Length divisibility is checked separately.
var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// Options configures a console Client.
type Options struct {
	// BaseURL is the Clauderon server address. It may use an http, https,
	// ws or wss scheme. transport.DefaultBaseURL is used when empty.
	BaseURL string

	// HandshakeTimeout bounds the WebSocket dial. Defaults to 10 seconds.
	HandshakeTimeout time.Duration
}

// Client is a console stream client. Use NewClient to create one; the zero
// value is not usable.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	conn    *conn // current connection, nil while idle
	started bool  // set by the first Connect, distinguishes idle from closed

	budget *errorBudget

	connected    transport.Hooks
	disconnected transport.Hooks
	data         transport.Listeners[string]
	errors       transport.Listeners[error]
}

// conn is one WebSocket connection to a session console. The client owns
// at most one; a superseded conn's read loop keeps running until the
// socket unwinds, and everything it reports after supersession is dropped
// by identity checks against Client.conn.
type conn struct {
	sessionID string
	decoder   *streamDecoder
	cancel    context.CancelFunc // aborts an in-flight dial

	// ws and open are written under Client.mu once the dial completes and
	// never change afterwards.
	ws   *websocket.Conn
	open bool
}

// NewClient creates a console client. The logger receives local
// diagnostics such as suppressed error events; pass zerolog.Nop() to
// discard them.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = transport.DefaultBaseURL
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{
		opts:   opts,
		log:    logger,
		budget: newErrorBudget(MaxErrorsPerSecond, errorWindow),
	}
}

// Connect opens the console stream for the given session. If a connection
// is already open or being opened it is torn down first, emitting a single
// disconnected notification, so a client never holds two connections.
// Connect returns immediately; the dial runs in the background and its
// outcome arrives through the connected or error listeners. ctx bounds the
// dial only, not the lifetime of the connection.
func (c *Client) Connect(ctx context.Context, sessionID string) {
	c.closeCurrent()
	c.budget.reset()

	dialCtx, cancel := context.WithCancel(ctx)
	cn := &conn{
		sessionID: sessionID,
		decoder:   newStreamDecoder(),
		cancel:    cancel,
	}

	c.mu.Lock()
	c.conn = cn
	c.started = true
	c.mu.Unlock()

	go c.dial(dialCtx, cn)
}

// Disconnect closes the current connection, discards the decoder state and
// resets the error budget. Calling it while not connected is a no-op.
func (c *Client) Disconnect() {
	c.closeCurrent()
	c.budget.reset()
}

// closeCurrent detaches and closes the current connection, if any, and
// emits a single disconnected notification for it.
func (c *Client) closeCurrent() {
	c.mu.Lock()
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
	// The decoder is not touched here: the read loop owns it and the whole
	// conn is dropped together with any buffered partial sequence.
	cn.cancel()
	if ws != nil {
		_ = ws.Close()
	}
	c.disconnected.Emit()
}

func (c *Client) dial(ctx context.Context, cn *conn) {
	defer cn.cancel()

	wsURL, err := transport.ConsoleURL(c.opts.BaseURL, cn.sessionID)
	if err != nil {
		c.failDial(cn, &transport.TransportError{Kind: transport.KindSocket, SessionID: cn.sessionID, Err: err})
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.failDial(cn, &transport.TransportError{Kind: transport.KindSocket, SessionID: cn.sessionID, Err: err})
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

	c.log.Debug().Str("session_id", cn.sessionID).Msg("console connected")
	c.connected.Emit()

	go c.readLoop(cn)
}

// failDial reports a dial failure for cn unless it was superseded.
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
	c.log.Warn().Err(err).Str("session_id", cn.sessionID).Msg("console connect failed")
	c.emitError(err)
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

	cn.decoder.Reset()
	if !isExpectedClose(err) {
		c.emitError(&transport.TransportError{Kind: transport.KindSocket, SessionID: cn.sessionID, Err: err})
	}
	c.log.Debug().Str("session_id", cn.sessionID).Msg("console disconnected")
	c.disconnected.Emit()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// handleFrame runs the inbound pipeline for one frame. Every failure is
// contained here: the frame is dropped, an error event may be emitted, and
// the read loop carries on.
func (c *Client) handleFrame(cn *conn, raw []byte) {
	if !c.isCurrent(cn) {
		return
	}

	// Data stays untyped so that a frame with a non-string payload can be
	// told apart from one that does not parse at all.
	var frame struct {
		Type    string      `json:"type"`
		Data    interface{} `json:"data"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.emitError(&transport.TransportError{Kind: transport.KindParse, SessionID: cn.sessionID, Err: err})
		return
	}

	switch frame.Type {
	case transport.FrameOutput:
		c.handleOutput(cn, frame.Data)
	case transport.FrameAttached:
		c.log.Debug().Str("session_id", cn.sessionID).Msg("console attached")
	case transport.FrameError:
		c.emitError(&transport.TransportError{Kind: transport.KindRemote, SessionID: cn.sessionID, Message: frame.Message})
	default:
		// Not addressed to this client; ignore.
	}
}

func (c *Client) handleOutput(cn *conn, field interface{}) {
	data, ok := field.(string)
	if !ok {
		// Malformed but harmless; drop without an error event.
		c.log.Warn().Str("session_id", cn.sessionID).Msg("output frame data is not a string")
		return
	}

	if data == "" {
		c.emitData(cn, "")
		return
	}

	if len(data)%4 != 0 || !base64Pattern.MatchString(data) {
		c.emitError(&transport.DecodeError{
			Stage:      transport.StageValidation,
			SessionID:  cn.sessionID,
			DataLength: len(data),
			Sample:     utils.Truncate(data, sampleLimit),
		})
		return
	}

	if len(data) > MaxDataLength {
		c.emitError(&transport.TransportError{
			Kind:       transport.KindOversize,
			SessionID:  cn.sessionID,
			DataLength: len(data),
		})
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		c.emitError(&transport.DecodeError{
			Stage:      transport.StageBase64,
			SessionID:  cn.sessionID,
			DataLength: len(data),
			Sample:     utils.Truncate(data, sampleLimit),
			Err:        err,
		})
		return
	}

	c.emitData(cn, cn.decoder.Write(decoded))
}

func (c *Client) emitData(cn *conn, text string) {
	if !c.isCurrent(cn) {
		return
	}
	c.data.Emit(text)
}

// emitError delivers err to error listeners if the budget allows it, and
// logs it locally otherwise.
func (c *Client) emitError(err error) {
	ok, exhausted := c.budget.allow()
	if !ok {
		if exhausted {
			c.log.Warn().Err(err).Msg("too many console errors, suppressing error events")
		} else {
			c.log.Debug().Err(err).Msg("console error event suppressed")
		}
		return
	}
	c.errors.Emit(err)
}

func (c *Client) isCurrent(cn *conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == cn
}

// Write sends text as keystrokes to the session terminal. It fails with
// transport.ErrNotConnected when the stream is not open.
func (c *Client) Write(text string) error {
	frame := transport.InputFrame{
		Type: transport.FrameInput,
		Data: base64.StdEncoding.EncodeToString([]byte(text)),
	}
	return c.send(frame, "write")
}

// Resize reports a new terminal size to the session. It fails with
// transport.ErrNotConnected when the stream is not open.
func (c *Client) Resize(rows, cols int) error {
	frame := transport.ResizeFrame{Type: transport.FrameResize, Rows: rows, Cols: cols}
	return c.send(frame, "resize")
}

// Signal delivers a Unix signal to the session process. It fails with
// transport.ErrNotConnected when the stream is not open.
func (c *Client) Signal(sig transport.Signal) error {
	if !sig.Valid() {
		return fmt.Errorf("signal: unknown signal %q", sig)
	}
	frame := transport.SignalFrame{Type: transport.FrameSignal, Signal: sig}
	return c.send(frame, "signal")
}

func (c *Client) send(frame interface{}, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.open {
		return fmt.Errorf("%s: %w", op, transport.ErrNotConnected)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("%s: marshal frame: %w", op, err)
	}
	if err := c.conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsConnected reports whether the console stream is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.open
}

// Status reports where the client is in its connection lifecycle.
func (c *Client) Status() transport.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conn == nil && !c.started:
		return transport.StatusIdle
	case c.conn == nil:
		return transport.StatusClosed
	case c.conn.open:
		return transport.StatusOpen
	default:
		return transport.StatusConnecting
	}
}

// SessionID returns the session key of the current connection, or an empty
// string while idle.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.sessionID
}

// OnConnected registers fn to run when the stream opens.
func (c *Client) OnConnected(fn func()) transport.Disposer {
	return c.connected.Add(fn)
}

// OnDisconnected registers fn to run when the stream closes.
func (c *Client) OnDisconnected(fn func()) transport.Disposer {
	return c.disconnected.Add(fn)
}

// OnData registers fn to receive decoded output text. Chunks arrive in
// stream order; concatenating them reconstructs the terminal output.
func (c *Client) OnData(fn func(text string)) transport.Disposer {
	return c.data.Add(fn)
}

// OnError registers fn to receive transport and decode errors. Delivery is
// rate-limited to MaxErrorsPerSecond; suppressed errors go to the logger.
func (c *Client) OnError(fn func(err error)) transport.Disposer {
	return c.errors.Add(fn)
}
