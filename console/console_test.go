package console

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/linechat/metrics"
	"github.com/cyberinferno/linechat/presence"
	"github.com/cyberinferno/linechat/socketio"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) contains(s string) func() bool {
	return func() bool { return strings.Contains(b.String(), s) }
}

type harness struct {
	console *Console
	engine  *socketio.Engine
	input   *io.PipeWriter
	out     *syncBuffer
	done    chan error
	cancel  context.CancelFunc
}

func (h *harness) enter(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(h.input, line+"\n")
	require.NoError(t, err)
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(waitFor):
		t.Fatal("console did not return")
		return nil
	}
}

func start(t *testing.T, opts Options, port int, engineOpts ...socketio.Option) *harness {
	t.Helper()
	in, w := io.Pipe()
	out := &syncBuffer{}
	opts.In = in
	opts.Out = out

	c := New(opts)
	e := socketio.New(port, c.ErrorFunc(), append([]socketio.Option{socketio.WithBindHost("127.0.0.1")}, engineOpts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{console: c, engine: e, input: w, out: out, done: make(chan error, 1), cancel: cancel}
	go func() { h.done <- c.Run(ctx, e) }()

	t.Cleanup(func() {
		cancel()
		_ = w.Close()
		e.Dispose()
	})

	return h
}

func dialServer(t *testing.T, e *socketio.Engine) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestConsole_ServerMode(t *testing.T) {
	h := start(t, Options{Listen: true}, 0, socketio.WithMetrics(metrics.New()))
	require.Eventually(t, h.engine.Listening, waitFor, tick)

	conn, r := dialServer(t, h.engine)
	require.Eventually(t, func() bool { return len(h.engine.Sessions()) == 1 }, waitFor, tick)

	t.Run("events are printed with timestamp, key and address", func(t *testing.T) {
		_, err := conn.Write([]byte("hi\n"))
		require.NoError(t, err)
		require.Eventually(t, h.out.contains("127.0.0.1: hi"), waitFor, tick)
		assert.Contains(t, h.out.String(), "127.0.0.1: connected")

		line := strings.SplitN(h.out.String(), "\n", 2)[0]
		_, err = time.Parse("["+TimestampLayout+"]", strings.Fields(line)[0])
		assert.NoError(t, err)
	})

	t.Run("operator lines are broadcast", func(t *testing.T) {
		h.enter(t, "hello everyone")
		assert.Equal(t, "hello everyone\n", readLine(t, conn, r))
	})

	t.Run("who lists sessions", func(t *testing.T) {
		h.enter(t, "/who")
		require.Eventually(t, h.out.contains("1 online"), waitFor, tick)
		assert.Contains(t, h.out.String(), "#1 ")
	})

	t.Run("stats prints metrics", func(t *testing.T) {
		h.enter(t, "/stats")
		require.Eventually(t, h.out.contains(`"sessions_active": 1`), waitFor, tick)
	})

	t.Run("unknown command", func(t *testing.T) {
		h.enter(t, "/dance")
		require.Eventually(t, h.out.contains("unknown command /dance"), waitFor, tick)
	})

	t.Run("kick validates its argument", func(t *testing.T) {
		h.enter(t, "/kick")
		require.Eventually(t, h.out.contains("usage: /kick <id>"), waitFor, tick)
		h.enter(t, "/kick abc")
		require.Eventually(t, h.out.contains(`invalid session id "abc"`), waitFor, tick)
		h.enter(t, "/kick 99")
		require.Eventually(t, h.out.contains("no session #99"), waitFor, tick)
	})

	t.Run("kick disconnects the session", func(t *testing.T) {
		h.enter(t, "/kick 1")
		require.Eventually(t, h.out.contains("kicked "), waitFor, tick)
		require.Eventually(t, h.out.contains("127.0.0.1: disconnected"), waitFor, tick)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
		_, err := r.ReadString('\n')
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("broadcast without sessions", func(t *testing.T) {
		require.Eventually(t, func() bool { return len(h.engine.Sessions()) == 0 }, waitFor, tick)
		h.enter(t, "anyone?")
		require.Eventually(t, h.out.contains("no connected sessions"), waitFor, tick)
	})

	t.Run("quit disposes the engine", func(t *testing.T) {
		h.enter(t, "/quit")
		assert.NoError(t, h.wait(t))
		assert.Equal(t, socketio.RoleIdle, h.engine.Role())
		assert.False(t, h.engine.Listening())
	})
}

func TestConsole_StatsWithoutMetrics(t *testing.T) {
	h := start(t, Options{Listen: true}, 0)
	require.Eventually(t, h.engine.Listening, waitFor, tick)

	h.enter(t, "/stats")
	require.Eventually(t, h.out.contains("metrics are disabled"), waitFor, tick)
}

func TestConsole_Relay(t *testing.T) {
	h := start(t, Options{Listen: true, Relay: true}, 0)
	require.Eventually(t, h.engine.Listening, waitFor, tick)

	c1, r1 := dialServer(t, h.engine)
	c2, r2 := dialServer(t, h.engine)
	require.Eventually(t, func() bool { return len(h.engine.Sessions()) == 2 }, waitFor, tick)

	_, err := c1.Write([]byte("ping\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1: ping\n", readLine(t, c2, r2))

	require.NoError(t, c1.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = r1.ReadString('\n')
	assert.Error(t, err)
}

func TestConsole_WhoUsesPresence(t *testing.T) {
	tracker := presence.NewMemoryTracker(0, time.Minute)
	h := start(t, Options{Listen: true, Presence: tracker}, 0, socketio.WithPresence(tracker))
	require.Eventually(t, h.engine.Listening, waitFor, tick)

	require.NoError(t, tracker.Online(context.Background(), presence.Entry{
		Key: "10.0.0.2:9999->10.0.0.9:40000", ID: 7, Address: "10.0.0.9", CreatedAt: time.Now(),
	}))

	h.enter(t, "/who")
	require.Eventually(t, h.out.contains("1 online"), waitFor, tick)
	assert.Contains(t, h.out.String(), "#7 10.0.0.2:9999->10.0.0.9:40000 10.0.0.9")
}

func TestConsole_ClientMode(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	h := start(t, Options{Host: "127.0.0.1"}, ln.Addr().(*net.TCPAddr).Port)

	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()
	pr := bufio.NewReader(peer)
	require.Eventually(t, h.engine.Connected, waitFor, tick)

	t.Run("operator lines go to the server", func(t *testing.T) {
		h.enter(t, "hi from operator")
		assert.Equal(t, "hi from operator\n", readLine(t, peer, pr))
	})

	t.Run("server lines are printed", func(t *testing.T) {
		_, err := peer.Write([]byte("welcome\n"))
		require.NoError(t, err)
		require.Eventually(t, h.out.contains("127.0.0.1: welcome"), waitFor, tick)
	})

	t.Run("moderator commands are refused", func(t *testing.T) {
		h.enter(t, "/who")
		require.Eventually(t, h.out.contains("/who is only available in listen mode"), waitFor, tick)
		h.enter(t, "/kick 1")
		require.Eventually(t, h.out.contains("/kick is only available in listen mode"), waitFor, tick)
	})

	t.Run("server hang-up ends the console", func(t *testing.T) {
		require.NoError(t, peer.Close())
		assert.NoError(t, h.wait(t))
		assert.Equal(t, socketio.RoleIdle, h.engine.Role())
		assert.Contains(t, h.out.String(), "127.0.0.1: disconnected")
	})
}

func TestConsole_DialFailureEndsRun(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	h := start(t, Options{Host: "127.0.0.1"}, port)

	assert.NoError(t, h.wait(t))
	assert.Contains(t, h.out.String(), "error: dial")
}

func TestConsole_BindFailureEndsRun(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	h := start(t, Options{Listen: true}, occupied.Addr().(*net.TCPAddr).Port)

	assert.NoError(t, h.wait(t))
	assert.Contains(t, h.out.String(), "error: listen")
	assert.Equal(t, socketio.RoleIdle, h.engine.Role())
}

func TestConsole_StopsOnCancel(t *testing.T) {
	h := start(t, Options{Listen: true}, 0)
	require.Eventually(t, h.engine.Listening, waitFor, tick)

	h.cancel()
	assert.NoError(t, h.wait(t))
	assert.Equal(t, socketio.RoleIdle, h.engine.Role())
}

func TestConsole_StopsOnEndOfInput(t *testing.T) {
	h := start(t, Options{Listen: true}, 0)
	require.Eventually(t, h.engine.Listening, waitFor, tick)

	require.NoError(t, h.input.Close())
	assert.NoError(t, h.wait(t))
	assert.Equal(t, socketio.RoleIdle, h.engine.Role())
}

func TestConsole_BusyEngine(t *testing.T) {
	out := &syncBuffer{}
	c := New(Options{In: strings.NewReader(""), Out: out, Listen: true})
	e := socketio.New(0, c.ErrorFunc(), socketio.WithBindHost("127.0.0.1"))
	t.Cleanup(e.Dispose)

	require.NoError(t, e.Listen(nil))
	err := c.Run(context.Background(), e)
	assert.ErrorIs(t, err, socketio.ErrBusy)
	assert.Contains(t, out.String(), "error: job is busy")
}
