package clauderontest

import (
	"encoding/base64"
	"time"

	"github.com/rs/zerolog"

	"github.com/clauderon/clauderon-go/transport"
)

// Script is a sequence of frames played to a console client after it
// attaches. Steps run in order; Pause inserts delays, Close and Drop end
// the connection. Build one with NewScript and the chaining methods:
//
//	clauderontest.NewScript().Output("hello\n").Pause(10 * time.Millisecond).Close()
type Script struct {
	steps []scriptStep
}

type scriptStep struct {
	frame interface{} // JSON-encoded when non-nil
	raw   string      // sent verbatim when set
	pause time.Duration
	close bool
	drop  bool
}

// NewScript creates an empty script.
func NewScript() *Script {
	return &Script{}
}

// Output appends a well-formed output frame carrying text.
func (sc *Script) Output(text string) *Script {
	return sc.Chunk([]byte(text))
}

// Chunk appends an output frame carrying exactly the given bytes, which
// may end in the middle of a multi-byte character. Splitting one rune
// across two Chunk steps exercises the client's incremental decoding.
func (sc *Script) Chunk(p []byte) *Script {
	return sc.Data(base64.StdEncoding.EncodeToString(p))
}

// Data appends an output frame whose data field is used verbatim: not
// necessarily valid base64, not necessarily within size limits.
func (sc *Script) Data(data string) *Script {
	sc.steps = append(sc.steps, scriptStep{
		frame: transport.OutputFrame{Type: transport.FrameOutput, Data: data},
	})
	return sc
}

// Error appends a server-side error frame.
func (sc *Script) Error(message string) *Script {
	sc.steps = append(sc.steps, scriptStep{
		frame: transport.ErrorFrame{Type: transport.FrameError, Message: message},
	})
	return sc
}

// Raw appends a verbatim text message, bypassing JSON encoding. Use it
// to deliver frames that do not parse at all.
func (sc *Script) Raw(frame string) *Script {
	sc.steps = append(sc.steps, scriptStep{raw: frame})
	return sc
}

// Pause appends a delay before the next step.
func (sc *Script) Pause(d time.Duration) *Script {
	sc.steps = append(sc.steps, scriptStep{pause: d})
	return sc
}

// Close ends the script by closing the socket with a normal close frame.
func (sc *Script) Close() *Script {
	sc.steps = append(sc.steps, scriptStep{close: true})
	return sc
}

// Drop ends the script by closing the socket abruptly.
func (sc *Script) Drop() *Script {
	sc.steps = append(sc.steps, scriptStep{drop: true})
	return sc
}

func (sc *Script) play(conn *wsConn, log zerolog.Logger) {
	for _, st := range sc.steps {
		switch {
		case st.pause > 0:
			time.Sleep(st.pause)
		case st.close:
			conn.close()
			return
		case st.drop:
			conn.drop()
			return
		case st.raw != "":
			if err := conn.writeRaw(st.raw); err != nil {
				log.Debug().Err(err).Msg("script write failed")
				return
			}
		case st.frame != nil:
			if err := conn.writeJSON(st.frame); err != nil {
				log.Debug().Err(err).Msg("script write failed")
				return
			}
		}
	}
}
