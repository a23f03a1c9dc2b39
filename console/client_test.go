package console

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clauderon/clauderon-go/clauderontest"
	"github.com/clauderon/clauderon-go/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func startServer(t *testing.T) *clauderontest.Server {
	t.Helper()
	srv := clauderontest.New(zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

// consoleRecorder collects everything a client emits.
type consoleRecorder struct {
	mu          sync.Mutex
	chunks      []string
	errs        []error
	connects    int
	disconnects int
}

func record(c *Client) *consoleRecorder {
	r := &consoleRecorder{}
	c.OnConnected(func() {
		r.mu.Lock()
		r.connects++
		r.mu.Unlock()
	})
	c.OnDisconnected(func() {
		r.mu.Lock()
		r.disconnects++
		r.mu.Unlock()
	})
	c.OnData(func(text string) {
		r.mu.Lock()
		r.chunks = append(r.chunks, text)
		r.mu.Unlock()
	})
	c.OnError(func(err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	})
	return r
}

func (r *consoleRecorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.chunks, "")
}

func (r *consoleRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func (r *consoleRecorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errs))
	copy(out, r.errs)
	return out
}

func (r *consoleRecorder) counts() (connects, disconnects int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.disconnects
}

func TestClient_NotConnected(t *testing.T) {
	c := NewClient(Options{}, zerolog.Nop())

	assert.ErrorIs(t, c.Write("x"), transport.ErrNotConnected)
	assert.ErrorIs(t, c.Resize(24, 80), transport.ErrNotConnected)
	assert.ErrorIs(t, c.Signal(transport.SignalINT), transport.ErrNotConnected)
	assert.False(t, c.IsConnected())
	assert.Empty(t, c.SessionID())
	assert.Equal(t, transport.StatusIdle, c.Status())
}

func TestClient_ConnectAndStream(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().Output("hello ").Output("world"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "hello world" }, waitFor, tick)
	assert.True(t, c.IsConnected())
	assert.Equal(t, transport.StatusOpen, c.Status())
	assert.Equal(t, "s1", c.SessionID())

	connects, disconnects := r.counts()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 0, disconnects)
	assert.Empty(t, r.errors())
}

func TestClient_SplitRuneAcrossFrames(t *testing.T) {
	srv := startServer(t)
	// U+1F600 split after two of its four bytes.
	srv.ScriptConsole("s1", clauderontest.NewScript().
		Chunk([]byte{0xF0, 0x9F}).
		Chunk([]byte{0x98, 0x80}).
		Output("!"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "😀!" }, waitFor, tick)
	assert.Empty(t, r.errors())
}

func TestClient_InvalidByteReplaced(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().Chunk([]byte{'H', 'i', 0xFF, '!'}))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "Hi�!" }, waitFor, tick)
	// Replacement is silent: decode errors are not error events.
	assert.Empty(t, r.errors())
}

func TestClient_MalformedBase64(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().Data("abc").Output("ok"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "ok" }, waitFor, tick)

	errs := r.errors()
	require.Len(t, errs, 1)
	var de *transport.DecodeError
	require.ErrorAs(t, errs[0], &de)
	assert.Equal(t, transport.StageValidation, de.Stage)
	assert.Equal(t, 3, de.DataLength)
	assert.Equal(t, "abc", de.Sample)
	assert.Equal(t, "s1", de.SessionID)
}

func TestClient_OversizedFrame(t *testing.T) {
	srv := startServer(t)
	// Valid base64, four characters past the cap.
	big := strings.Repeat("AAAA", MaxDataLength/4+1)
	srv.ScriptConsole("s1", clauderontest.NewScript().Data(big).Output("ok"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "ok" }, waitFor, tick)

	errs := r.errors()
	require.Len(t, errs, 1)
	var te *transport.TransportError
	require.ErrorAs(t, errs[0], &te)
	assert.Equal(t, transport.KindOversize, te.Kind)
	assert.Equal(t, len(big), te.DataLength)
}

func TestClient_EmptyOutputFrame(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().Data("").Output("after"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return len(r.all()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"", "after"}, r.all())
	assert.Empty(t, r.errors())
}

func TestClient_IgnoresNoise(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().
		Raw(`{"type":"output","data":42}`).
		Raw(`{"type":"snapshot","data":"eA=="}`).
		Raw("not json").
		Output("still alive"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "still alive" }, waitFor, tick)

	// Only the unparseable frame produces an error event; the non-string
	// payload and the unknown type are dropped silently.
	errs := r.errors()
	require.Len(t, errs, 1)
	var te *transport.TransportError
	require.ErrorAs(t, errs[0], &te)
	assert.Equal(t, transport.KindParse, te.Kind)
}

func TestClient_RemoteErrorFrame(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().Error("session not found").Output("x"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return r.text() == "x" }, waitFor, tick)

	errs := r.errors()
	require.Len(t, errs, 1)
	var te *transport.TransportError
	require.ErrorAs(t, errs[0], &te)
	assert.Equal(t, transport.KindRemote, te.Kind)
	assert.Contains(t, te.Error(), "session not found")
}

func TestClient_ErrorThrottling(t *testing.T) {
	srv := startServer(t)
	burst := clauderontest.NewScript()
	for i := 0; i < 10; i++ {
		burst.Data("abc")
	}
	burst.Output("done1")
	srv.ScriptConsole("s1", burst)

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()

	require.Eventually(t, func() bool { return strings.Contains(r.text(), "done1") }, waitFor, tick)
	n := len(r.errors())
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, MaxErrorsPerSecond)

	// Reconnecting resets the budget; a fresh burst emits again.
	burst2 := clauderontest.NewScript()
	for i := 0; i < 10; i++ {
		burst2.Data("abc")
	}
	burst2.Output("done2")
	srv.ScriptConsole("s2", burst2)

	c.Connect(context.Background(), "s2")
	require.Eventually(t, func() bool { return strings.Contains(r.text(), "done2") }, waitFor, tick)
	assert.Greater(t, len(r.errors()), n)
	assert.LessOrEqual(t, len(r.errors())-n, MaxErrorsPerSecond)
}

func TestClient_ConnectSupersedes(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("a", clauderontest.NewScript().Output("from-a"))
	srv.ScriptConsole("b", clauderontest.NewScript().Output("from-b"))

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "a")
	require.Eventually(t, func() bool { return r.text() == "from-a" }, waitFor, tick)

	c.Connect(context.Background(), "b")
	defer c.Disconnect()
	require.Eventually(t, func() bool { return strings.HasSuffix(r.text(), "from-b") }, waitFor, tick)

	assert.Equal(t, "b", c.SessionID())
	connects, disconnects := r.counts()
	assert.Equal(t, 2, connects)
	// Supersession tears the first connection down exactly once.
	assert.Equal(t, 1, disconnects)
}

func TestClient_DisconnectIdempotent(t *testing.T) {
	srv := startServer(t)

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	require.Eventually(t, c.IsConnected, waitFor, tick)

	c.Disconnect()
	c.Disconnect()

	assert.False(t, c.IsConnected())
	assert.Equal(t, transport.StatusClosed, c.Status())
	assert.ErrorIs(t, c.Write("x"), transport.ErrNotConnected)

	_, disconnects := r.counts()
	assert.Equal(t, 1, disconnects)
}

func TestClient_NormalCloseSilent(t *testing.T) {
	srv := startServer(t)
	srv.ScriptConsole("s1", clauderontest.NewScript().Output("bye").Close())

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")

	require.Eventually(t, func() bool {
		_, d := r.counts()
		return d == 1
	}, waitFor, tick)
	assert.Equal(t, "bye", r.text())
	assert.Empty(t, r.errors())
	assert.False(t, c.IsConnected())
}

func TestClient_AbnormalCloseEmitsError(t *testing.T) {
	srv := startServer(t)

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	require.Eventually(t, c.IsConnected, waitFor, tick)

	srv.DropConsole("s1")

	require.Eventually(t, func() bool {
		_, d := r.counts()
		return d == 1
	}, waitFor, tick)

	errs := r.errors()
	require.Len(t, errs, 1)
	var te *transport.TransportError
	require.ErrorAs(t, errs[0], &te)
	assert.Equal(t, transport.KindSocket, te.Kind)
}

func TestClient_DialFailure(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")

	require.Eventually(t, func() bool { return len(r.errors()) == 1 }, waitFor, tick)
	var te *transport.TransportError
	require.ErrorAs(t, r.errors()[0], &te)
	assert.Equal(t, transport.KindSocket, te.Kind)
	assert.False(t, c.IsConnected())
}

func TestClient_WriteResizeSignal(t *testing.T) {
	srv := startServer(t)
	srv.SetEcho(true)

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())
	r := record(c)
	c.Connect(context.Background(), "s1")
	defer c.Disconnect()
	require.Eventually(t, c.IsConnected, waitFor, tick)

	require.NoError(t, c.Write("hi"))
	require.NoError(t, c.Resize(40, 120))
	require.NoError(t, c.Signal(transport.SignalINT))

	require.NoError(t, srv.AwaitConsoleInputs("s1", 3, waitFor))
	ins := srv.ConsoleInputs("s1")
	require.Len(t, ins, 3)
	assert.Equal(t, transport.FrameInput, ins[0].Type)
	assert.Equal(t, "hi", ins[0].Text)
	assert.Equal(t, transport.FrameResize, ins[1].Type)
	assert.Equal(t, 40, ins[1].Rows)
	assert.Equal(t, 120, ins[1].Cols)
	assert.Equal(t, transport.FrameSignal, ins[2].Type)
	assert.Equal(t, transport.SignalINT, ins[2].Signal)

	// The echoed input makes it back through the decode pipeline.
	require.Eventually(t, func() bool { return r.text() == "hi" }, waitFor, tick)

	assert.Error(t, c.Signal(transport.Signal("SIGFOO")))
}

func TestClient_DisposerStopsDelivery(t *testing.T) {
	srv := startServer(t)

	c := NewClient(Options{BaseURL: srv.BaseURL()}, zerolog.Nop())

	var mu sync.Mutex
	gotA, gotB := 0, 0
	disposeA := c.OnData(func(string) {
		mu.Lock()
		gotA++
		mu.Unlock()
	})
	c.OnData(func(string) {
		mu.Lock()
		gotB++
		mu.Unlock()
	})
	counts := func() (int, int) {
		mu.Lock()
		defer mu.Unlock()
		return gotA, gotB
	}

	c.Connect(context.Background(), "s1")
	defer c.Disconnect()
	require.Eventually(t, c.IsConnected, waitFor, tick)

	srv.SendOutput("s1", "one")
	require.Eventually(t, func() bool { a, b := counts(); return a == 1 && b == 1 }, waitFor, tick)

	disposeA()
	srv.SendOutput("s1", "two")
	require.Eventually(t, func() bool { _, b := counts(); return b == 2 }, waitFor, tick)

	// Still disposed after a reconnect cycle.
	c.Connect(context.Background(), "s1")
	require.Eventually(t, c.IsConnected, waitFor, tick)
	srv.SendOutput("s1", "three")
	require.Eventually(t, func() bool { _, b := counts(); return b == 3 }, waitFor, tick)

	a, _ := counts()
	assert.Equal(t, 1, a)
}
