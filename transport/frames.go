package transport

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame type tags, shared by the console and events sockets.
const (
	FrameInput     = "input"
	FrameResize    = "resize"
	FrameSignal    = "signal"
	FrameOutput    = "output"
	FrameAttached  = "attached"
	FrameError     = "error"
	FrameConnected = "connected"
	FrameEvent     = "event"
)

// --- Client → Server (console socket) ---

// InputFrame carries keystroke bytes to the session terminal. Data is the
// base64 encoding of the UTF-8 bytes.
type InputFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ResizeFrame changes the terminal window size.
type ResizeFrame struct {
	Type string `json:"type"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// SignalFrame delivers a Unix signal to the session process.
type SignalFrame struct {
	Type   string `json:"type"`
	Signal Signal `json:"signal"`
}

// --- Server → Client (console socket) ---

// OutputFrame carries terminal output. Data is the base64 encoding of the
// raw output bytes, which may end mid-way through a multi-byte character.
type OutputFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// AttachedFrame acknowledges that the server bound the socket to the
// session. It carries no payload.
type AttachedFrame struct {
	Type string `json:"type"`
}

// ErrorFrame reports a server-side failure on the console stream.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- Server → Client (events socket) ---

// ConnectedFrame acknowledges the events subscription.
type ConnectedFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// EventFrame wraps one domain event. Event is kept raw: the transport
// forwards it to subscribers without interpreting its contents.
type EventFrame struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// Signal identifies a Unix signal that can be delivered to the session
// process over the console socket.
type Signal string

// Signals accepted by the server.
const (
	SignalHUP  Signal = "SIGHUP"
	SignalINT  Signal = "SIGINT"
	SignalQUIT Signal = "SIGQUIT"
	SignalKILL Signal = "SIGKILL"
	SignalUSR1 Signal = "SIGUSR1"
	SignalUSR2 Signal = "SIGUSR2"
	SignalTERM Signal = "SIGTERM"
	SignalCONT Signal = "SIGCONT"
	SignalTSTP Signal = "SIGTSTP"
)

// Signals returns all supported signals in signal-number order.
func Signals() []Signal {
	return []Signal{
		SignalHUP, SignalINT, SignalQUIT, SignalKILL, SignalUSR1,
		SignalUSR2, SignalTERM, SignalCONT, SignalTSTP,
	}
}

// Number returns the Unix signal number, or 0 for an unknown signal.
func (s Signal) Number() int {
	switch s {
	case SignalHUP:
		return 1
	case SignalINT:
		return 2
	case SignalQUIT:
		return 3
	case SignalKILL:
		return 9
	case SignalUSR1:
		return 10
	case SignalUSR2:
		return 12
	case SignalTERM:
		return 15
	case SignalCONT:
		return 18
	case SignalTSTP:
		return 20
	default:
		return 0
	}
}

// Valid reports whether s is one of the supported signals.
func (s Signal) Valid() bool {
	return s.Number() != 0
}

// Description returns a short human-readable description of the signal.
func (s Signal) Description() string {
	switch s {
	case SignalHUP:
		return "Terminal disconnected"
	case SignalINT:
		return "Interrupt process (Ctrl+C)"
	case SignalQUIT:
		return "Quit with core dump (Ctrl+\\)"
	case SignalKILL:
		return "Force kill (cannot be caught)"
	case SignalUSR1:
		return "Application-defined signal 1"
	case SignalUSR2:
		return "Application-defined signal 2"
	case SignalTERM:
		return "Graceful termination request"
	case SignalCONT:
		return "Resume suspended process"
	case SignalTSTP:
		return "Suspend process (Ctrl+Z)"
	default:
		return "Unknown signal"
	}
}

// ParseSignal returns the Signal named by name. The "SIG" prefix is
// optional and matching is case-insensitive, so "int", "INT" and "SIGINT"
// all yield SignalINT.
func ParseSignal(name string) (Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	s := Signal(n)
	if !s.Valid() {
		return "", fmt.Errorf("unknown signal %q", name)
	}
	return s, nil
}
