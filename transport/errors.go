package transport

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by operations that require an open
// connection, such as writing input or resizing the terminal, when the
// client is not connected. It reports a caller mistake and is returned
// synchronously rather than delivered to error listeners.
var ErrNotConnected = errors.New("not connected")

// DecodeStage identifies the pipeline stage at which decoding of a console
// output frame failed.
type DecodeStage string

// Decode pipeline stages.
const (
	// StageValidation covers base64 well-formedness checks before decoding.
	StageValidation DecodeStage = "validation"
	// StageBase64 covers the base64 decode itself.
	StageBase64 DecodeStage = "base64"
	// StageUTF8 covers the byte-to-text conversion.
	StageUTF8 DecodeStage = "utf8"
)

// DecodeError reports a failure while decoding one console output frame.
// The frame is dropped; the stream continues with the next frame.
type DecodeError struct {
	Stage      DecodeStage
	SessionID  string
	DataLength int    // length of the offending payload, in encoded characters
	Sample     string // truncated prefix of the offending payload
	Bytes      []byte // leading raw bytes, set for the utf8 stage only
	Err        error  // underlying cause, when any
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode output at %s stage: session %s, %d chars", e.Stage, e.SessionID, e.DataLength)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HexDump returns the leading raw bytes as space-separated hex pairs, or an
// empty string when no bytes were captured.
func (e *DecodeError) HexDump() string {
	if len(e.Bytes) == 0 {
		return ""
	}
	return fmt.Sprintf("% x", e.Bytes)
}

// ErrorKind classifies a connection-level failure.
type ErrorKind string

// Transport error kinds.
const (
	// KindSocket covers dial failures, read failures, and abnormal closes.
	KindSocket ErrorKind = "socket"
	// KindParse covers frames that are not valid JSON.
	KindParse ErrorKind = "parse"
	// KindOversize covers output payloads exceeding the size cap.
	KindOversize ErrorKind = "oversize"
	// KindRemote covers error frames reported by the server.
	KindRemote ErrorKind = "remote"
)

// TransportError reports a connection-level failure: a socket error, a
// frame that could not be parsed, an oversized payload, or an error the
// server reported over the wire.
type TransportError struct {
	Kind       ErrorKind
	SessionID  string // session key for console streams, empty for the events stream
	DataLength int    // payload size, set for oversize errors
	Message    string // server-provided text, set for remote errors
	Err        error  // underlying cause, when any
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case KindParse:
		return fmt.Sprintf("parse frame: %v", e.Err)
	case KindOversize:
		return fmt.Sprintf("output payload too large: %d chars", e.DataLength)
	case KindRemote:
		return fmt.Sprintf("server error: %s", e.Message)
	default:
		return fmt.Sprintf("socket error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
