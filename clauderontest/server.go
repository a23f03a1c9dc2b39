// Package clauderontest runs an in-process Clauderon server for tests and
// demos. It speaks the console and events wire protocols over real
// WebSockets on a loopback port, plays scripted output, records what
// clients send, and can inject the malformed traffic the production
// clients have to survive.
package clauderontest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clauderon/clauderon-go/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConsoleInput is one frame received from a console client.
type ConsoleInput struct {
	Type   string
	Text   string // decoded input bytes, or the raw data field if undecodable
	Rows   int
	Cols   int
	Signal transport.Signal
}

// Server is the mock Clauderon server. Create one with New, then Start
// it; BaseURL is the address to point clients at.
type Server struct {
	log  zerolog.Logger
	echo *echo.Echo

	baseURL string

	mu       sync.Mutex
	consoles map[string][]*wsConn
	events   []*wsConn
	scripts  map[string]*Script
	shells   map[string]*shellSpec
	queued   []json.RawMessage
	inputs   map[string][]ConsoleInput
	echoing  bool
	healthy  bool
	feed     *cron.Cron
}

// wsConn serializes writes to one socket; the underlying connection
// allows a single concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *wsConn) writeRaw(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// close sends a normal close frame, then closes the socket.
func (c *wsConn) close() {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.ws.Close()
}

// drop closes the socket without a close frame, so clients see an
// abnormal closure.
func (c *wsConn) drop() {
	_ = c.ws.Close()
}

// New creates a stopped mock server.
func New(logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		log:      logger,
		echo:     e,
		consoles: make(map[string][]*wsConn),
		scripts:  make(map[string]*Script),
		shells:   make(map[string]*shellSpec),
		inputs:   make(map[string][]ConsoleInput),
		healthy:  true,
	}

	e.GET("/api/health", s.handleHealth)
	e.GET("/ws/console/:id", s.handleConsole)
	e.GET("/ws/events", s.handleEvents)

	return s
}

// Start listens on an ephemeral loopback port and serves until Stop.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.baseURL = "http://" + l.Addr().String()
	s.echo.Listener = l

	go func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Debug().Err(err).Msg("mock server stopped")
		}
	}()
	return nil
}

// Stop shuts the server down and drops every open connection.
func (s *Server) Stop() {
	s.mu.Lock()
	feed := s.feed
	s.feed = nil
	var conns []*wsConn
	for _, list := range s.consoles {
		conns = append(conns, list...)
	}
	conns = append(conns, s.events...)
	s.mu.Unlock()

	if feed != nil {
		feed.Stop()
	}
	for _, cn := range conns {
		cn.drop()
	}
	_ = s.echo.Close()
}

// BaseURL returns the http address of the running server.
func (s *Server) BaseURL() string {
	return s.baseURL
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// SetHealthy controls the /api/health response. An unhealthy server
// answers 503.
func (s *Server) SetHealthy(ok bool) {
	s.mu.Lock()
	s.healthy = ok
	s.mu.Unlock()
}

func (s *Server) handleHealth(c echo.Context) error {
	s.mu.Lock()
	ok := s.healthy
	s.mu.Unlock()

	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// --- Console endpoint ---

func (s *Server) handleConsole(c echo.Context) error {
	sessionID := c.Param("id")
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error().Err(err).Msg("console upgrade failed")
		return err
	}
	conn := &wsConn{ws: ws}

	s.mu.Lock()
	s.consoles[sessionID] = append(s.consoles[sessionID], conn)
	script := s.scripts[sessionID]
	shell := s.shells[sessionID]
	s.mu.Unlock()

	s.log.Debug().Str("session_id", sessionID).Msg("console client attached")
	_ = conn.writeJSON(transport.AttachedFrame{Type: transport.FrameAttached})

	var bridge *shellBridge
	if shell != nil {
		bridge, err = startShell(shell, conn, s.log)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("shell start failed")
			_ = conn.writeJSON(transport.ErrorFrame{Type: transport.FrameError, Message: err.Error()})
		}
	}
	if script != nil {
		go script.play(conn, s.log)
	}

	s.readConsole(sessionID, conn, bridge)

	if bridge != nil {
		bridge.stop()
	}
	s.removeConsole(sessionID, conn)
	s.log.Debug().Str("session_id", sessionID).Msg("console client detached")
	return nil
}

func (s *Server) readConsole(sessionID string, conn *wsConn, bridge *shellBridge) {
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var frame struct {
			Type   string           `json:"type"`
			Data   string           `json:"data"`
			Rows   int              `json:"rows"`
			Cols   int              `json:"cols"`
			Signal transport.Signal `json:"signal"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("unreadable console frame")
			continue
		}

		in := ConsoleInput{Type: frame.Type, Rows: frame.Rows, Cols: frame.Cols, Signal: frame.Signal}
		if frame.Type == transport.FrameInput {
			if decoded, err := base64.StdEncoding.DecodeString(frame.Data); err == nil {
				in.Text = string(decoded)
			} else {
				in.Text = frame.Data
			}
		}

		s.mu.Lock()
		s.inputs[sessionID] = append(s.inputs[sessionID], in)
		echoing := s.echoing
		s.mu.Unlock()

		switch frame.Type {
		case transport.FrameInput:
			if bridge != nil {
				bridge.input([]byte(in.Text))
			} else if echoing {
				_ = conn.writeJSON(transport.OutputFrame{Type: transport.FrameOutput, Data: frame.Data})
			}
		case transport.FrameResize:
			if bridge != nil {
				bridge.resize(frame.Rows, frame.Cols)
			}
		case transport.FrameSignal:
			if bridge != nil {
				bridge.signal(frame.Signal)
			}
		}
	}
}

func (s *Server) removeConsole(sessionID string, conn *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.consoles[sessionID]
	for i, cn := range list {
		if cn == conn {
			s.consoles[sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// ScriptConsole registers a script played to the next console client that
// attaches to sessionID.
func (s *Server) ScriptConsole(sessionID string, sc *Script) {
	s.mu.Lock()
	s.scripts[sessionID] = sc
	s.mu.Unlock()
}

// SetEcho makes the console echo every input frame back as an output
// frame, for round-trip tests.
func (s *Server) SetEcho(on bool) {
	s.mu.Lock()
	s.echoing = on
	s.mu.Unlock()
}

// SendOutput sends text to every console client of sessionID as a
// well-formed output frame.
func (s *Server) SendOutput(sessionID, text string) {
	s.SendData(sessionID, base64.StdEncoding.EncodeToString([]byte(text)))
}

// SendData sends an output frame whose data field is used verbatim, so
// tests can deliver invalid base64 or oversized payloads.
func (s *Server) SendData(sessionID, data string) {
	for _, cn := range s.consoleConns(sessionID) {
		_ = cn.writeJSON(transport.OutputFrame{Type: transport.FrameOutput, Data: data})
	}
}

// SendConsoleRaw sends a verbatim text message on the console socket,
// bypassing JSON encoding.
func (s *Server) SendConsoleRaw(sessionID, frame string) {
	for _, cn := range s.consoleConns(sessionID) {
		_ = cn.writeRaw(frame)
	}
}

// SendConsoleError sends an error frame to every console client of
// sessionID.
func (s *Server) SendConsoleError(sessionID, message string) {
	for _, cn := range s.consoleConns(sessionID) {
		_ = cn.writeJSON(transport.ErrorFrame{Type: transport.FrameError, Message: message})
	}
}

// CloseConsole closes sessionID's console sockets with a normal close
// frame.
func (s *Server) CloseConsole(sessionID string) {
	for _, cn := range s.consoleConns(sessionID) {
		cn.close()
	}
}

// DropConsole closes sessionID's console sockets abruptly, so clients
// observe an abnormal closure.
func (s *Server) DropConsole(sessionID string) {
	for _, cn := range s.consoleConns(sessionID) {
		cn.drop()
	}
}

func (s *Server) consoleConns(sessionID string) []*wsConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wsConn, len(s.consoles[sessionID]))
	copy(out, s.consoles[sessionID])
	return out
}

// ConsoleInputs returns everything received from sessionID's console
// clients so far.
func (s *Server) ConsoleInputs(sessionID string) []ConsoleInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConsoleInput, len(s.inputs[sessionID]))
	copy(out, s.inputs[sessionID])
	return out
}

// ConsoleCount returns the number of console clients attached to
// sessionID.
func (s *Server) ConsoleCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consoles[sessionID])
}

// AwaitConsole waits until a console client attaches to sessionID.
func (s *Server) AwaitConsole(sessionID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.ConsoleCount(sessionID) > 0 {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("no console client for session %s after %s", sessionID, timeout)
}

// AwaitConsoleInputs waits until sessionID's clients have sent at least n
// frames.
func (s *Server) AwaitConsoleInputs(sessionID string, n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(s.ConsoleInputs(sessionID)) >= n {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("fewer than %d console frames for session %s after %s", n, sessionID, timeout)
}

// --- Events endpoint ---

func (s *Server) handleEvents(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error().Err(err).Msg("events upgrade failed")
		return err
	}
	conn := &wsConn{ws: ws}

	_ = conn.writeJSON(transport.ConnectedFrame{
		Type:    transport.FrameConnected,
		Message: "Subscribed to session events",
	})

	s.mu.Lock()
	s.events = append(s.events, conn)
	queued := make([]json.RawMessage, len(s.queued))
	copy(queued, s.queued)
	s.mu.Unlock()

	s.log.Debug().Msg("events client subscribed")
	for _, ev := range queued {
		_ = conn.writeJSON(transport.EventFrame{Type: transport.FrameEvent, Event: ev})
	}

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			break
		}
	}

	s.removeEvents(conn)
	s.log.Debug().Msg("events client gone")
	return nil
}

func (s *Server) removeEvents(conn *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cn := range s.events {
		if cn == conn {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
}

// QueueEvents registers events replayed to every events client right
// after its handshake.
func (s *Server) QueueEvents(events ...interface{}) error {
	for _, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		s.mu.Lock()
		s.queued = append(s.queued, raw)
		s.mu.Unlock()
	}
	return nil
}

// BroadcastEvent wraps event in the wire envelope and sends it to every
// connected events client.
func (s *Server) BroadcastEvent(event interface{}) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	for _, cn := range s.eventConns() {
		_ = cn.writeJSON(transport.EventFrame{Type: transport.FrameEvent, Event: raw})
	}
	return nil
}

// BroadcastRaw sends a verbatim text message to every events client.
func (s *Server) BroadcastRaw(frame string) {
	for _, cn := range s.eventConns() {
		_ = cn.writeRaw(frame)
	}
}

// CloseEventClients closes all events sockets with a normal close frame.
func (s *Server) CloseEventClients() {
	for _, cn := range s.eventConns() {
		cn.close()
	}
}

// DropEventClients closes all events sockets abruptly.
func (s *Server) DropEventClients() {
	for _, cn := range s.eventConns() {
		cn.drop()
	}
}

func (s *Server) eventConns() []*wsConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wsConn, len(s.events))
	copy(out, s.events)
	return out
}

// EventClientCount returns the number of subscribed events clients.
func (s *Server) EventClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// AwaitEventClients waits until at least n events clients are subscribed.
func (s *Server) AwaitEventClients(n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.EventClientCount() >= n {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fmt.Errorf("fewer than %d events clients after %s", n, timeout)
}

// --- Synthetic feed ---

// StartFeed broadcasts a synthetic progress event on the given cron
// schedule (six-field, seconds first) until the server stops. Useful for
// demos and soak runs of the events client.
func (s *Server) StartFeed(spec string) error {
	c := cron.New(cron.WithSeconds())
	sessionID := NewSessionID()
	var step atomic.Int64
	_, err := c.AddFunc(spec, func() {
		_ = s.BroadcastEvent(SyntheticProgress(sessionID, int(step.Add(1))))
	})
	if err != nil {
		return fmt.Errorf("feed schedule: %w", err)
	}
	c.Start()

	s.mu.Lock()
	if s.feed != nil {
		s.feed.Stop()
	}
	s.feed = c
	s.mu.Unlock()
	return nil
}

// SyntheticProgress builds a SessionProgress event envelope, as the feed
// and demos emit it.
func SyntheticProgress(sessionID string, step int) interface{} {
	return map[string]interface{}{
		"type": "SessionProgress",
		"payload": map[string]interface{}{
			"id": sessionID,
			"progress": map[string]interface{}{
				"step":    step,
				"total":   0,
				"message": "synthetic feed",
			},
		},
	}
}
