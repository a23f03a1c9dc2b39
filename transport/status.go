// Package transport holds the pieces shared by the console and events
// clients: connection lifecycle states, the listener registry, the wire
// frame types, and the error taxonomy.
package transport

// Status represents the lifecycle state of a client connection.
type Status int

const (
	// StatusIdle means no connection has been opened yet.
	StatusIdle Status = iota
	// StatusConnecting means the WebSocket dial is in progress.
	StatusConnecting
	// StatusOpen means the connection is established and frames flow.
	StatusOpen
	// StatusClosed means the connection has been closed.
	StatusClosed
)

// String returns the string representation of the Status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
