package clauderontest

import (
	"encoding/base64"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/clauderon/clauderon-go/transport"
)

// AttachShell makes console clients of sessionID talk to a real process:
// each attach starts name with args under a pseudo-terminal, streams its
// output as output frames, and routes input, resize and signal frames to
// it. The process is killed when the client detaches.
func (s *Server) AttachShell(sessionID, name string, args ...string) {
	s.mu.Lock()
	s.shells[sessionID] = &shellSpec{name: name, args: args}
	s.mu.Unlock()
}

type shellSpec struct {
	name string
	args []string
}

// shellBridge owns one pty-backed process bound to one console socket.
type shellBridge struct {
	cmd  *exec.Cmd
	ptmx *os.File
	log  zerolog.Logger
}

func startShell(spec *shellSpec, conn *wsConn, log zerolog.Logger) (*shellBridge, error) {
	cmd := exec.Command(spec.name, spec.args...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	b := &shellBridge{cmd: cmd, ptmx: ptmx, log: log}
	go b.pump(conn)
	return b, nil
}

// pump copies pty output to the socket as output frames until either
// side goes away.
func (b *shellBridge) pump(conn *wsConn) {
	buf := make([]byte, 4096)
	for {
		n, err := b.ptmx.Read(buf)
		if n > 0 {
			frame := transport.OutputFrame{
				Type: transport.FrameOutput,
				Data: base64.StdEncoding.EncodeToString(buf[:n]),
			}
			if werr := conn.writeJSON(frame); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (b *shellBridge) input(p []byte) {
	if _, err := b.ptmx.Write(p); err != nil {
		b.log.Debug().Err(err).Msg("pty write failed")
	}
}

func (b *shellBridge) resize(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		return
	}
	size := &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}
	if err := pty.Setsize(b.ptmx, size); err != nil {
		b.log.Debug().Err(err).Msg("pty resize failed")
	}
}

func (b *shellBridge) signal(sig transport.Signal) {
	n := sig.Number()
	if n == 0 || b.cmd.Process == nil {
		return
	}
	if err := b.cmd.Process.Signal(syscall.Signal(n)); err != nil {
		b.log.Debug().Err(err).Msg("pty signal failed")
	}
}

func (b *shellBridge) stop() {
	_ = b.ptmx.Close()
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	_ = b.cmd.Wait()
}
