// Package socketio is a bidirectional, newline-delimited chat transport over
// plain TCP. An Engine either listens and accepts any number of concurrent
// clients, or connects to one remote server; never both at once. Each
// connection becomes a Session whose reader goroutine delivers lines, framed
// by a single line feed, to a caller-supplied MessageFunc, bracketed by a
// synthetic "connected" and "disconnected" event.
//
// Bind, accept, dial and read all run on background goroutines, so Listen and
// Connect return immediately. Failures are reported as strings to the
// ErrorFunc given to New.
package socketio

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cyberinferno/linechat/logger"
	"github.com/cyberinferno/linechat/metrics"
	"github.com/cyberinferno/linechat/presence"
)

const (
	// DefaultDialTimeout bounds how long Connect waits for the remote server.
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxLineLength is the longest line, in bytes, a reader accepts.
	// A longer line ends the session like any other read failure.
	DefaultMaxLineLength = 64 * 1024

	presenceTimeout = 2 * time.Second
)

// Engine is the connection-lifecycle manager. All methods are safe for
// concurrent use.
type Engine struct {
	port          int
	onError       ErrorFunc
	log           logger.Logger
	bindHost      string
	dialTimeout   time.Duration
	writeTimeout  time.Duration
	maxLineLength int
	tracker       presence.Tracker
	metrics       *metrics.Collector

	mu     sync.Mutex
	job    *job
	server *server
	client *Session

	listening atomic.Bool
	connected atomic.Bool
	ids       atomic.Uint32
	teardown  singleflight.Group
}

// New creates an idle Engine bound to one TCP port, used both for listening
// and as the remote port when connecting.
//
// Parameters:
//   - port: The TCP port; 0 listens on an ephemeral port (see Addr)
//   - onError: Error sink; may be nil
//   - opts: Optional settings
//
// Returns:
//   - A new idle *Engine
func New(port int, onError ErrorFunc, opts ...Option) *Engine {
	e := &Engine{
		port:          port,
		onError:       onError,
		log:           logger.NewNopLogger(),
		dialTimeout:   DefaultDialTimeout,
		maxLineLength: DefaultMaxLineLength,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Listen starts the server role. Binding happens on a background goroutine;
// a bind failure is reported to the error sink and leaves the engine idle.
// Poll Listening, or wait for the first event, to know the port is open.
//
// Parameters:
//   - onMessage: Receives every event of every accepted session; may be nil
//
// Returns:
//   - ErrBusy if a role is already active (also reported to the sink)
func (e *Engine) Listen(onMessage MessageFunc) error {
	ctx, j, err := e.acquire(RoleServer)
	if err != nil {
		return err
	}

	go e.runServer(ctx, j, onMessage)
	return nil
}

// Connect starts the client role by dialing address on the engine's port in
// the background. A dial failure is reported to the error sink and leaves
// the engine idle.
//
// Parameters:
//   - address: Host name or IP of the server, without port
//   - onMessage: Receives every event of the client session; may be nil
//
// Returns:
//   - ErrBusy if a role is already active (also reported to the sink)
func (e *Engine) Connect(address string, onMessage MessageFunc) error {
	ctx, j, err := e.acquire(RoleClient)
	if err != nil {
		return err
	}

	go e.runClient(ctx, j, address, onMessage)
	return nil
}

// Stop tears down the server role: every session is closed and awaited,
// the registry is cleared, then the listener is closed and the accept loop
// awaited. It returns once the engine is idle. Calling it when not listening
// is a no-op; concurrent calls share one teardown. It must not be called
// synchronously from a MessageFunc, which runs on a reader Stop waits for.
func (e *Engine) Stop() {
	_, _, _ = e.teardown.Do("stop", func() (any, error) {
		e.stop()
		return nil, nil
	})
}

// Disconnect tears down the client role: the socket is closed, which
// unblocks the reader, and the reader is awaited. A dial still in progress
// is aborted. It returns once the engine is idle and has the same
// MessageFunc restriction as Stop.
func (e *Engine) Disconnect() {
	_, _, _ = e.teardown.Do("disconnect", func() (any, error) {
		e.disconnect()
		return nil, nil
	})
}

// Dispose shuts down whatever role is active, the client role before the
// server role, and waits for completion.
func (e *Engine) Dispose() {
	_, _, _ = e.teardown.Do("dispose", func() (any, error) {
		if e.Role() == RoleClient {
			e.Disconnect()
		}
		if e.Role() == RoleServer {
			e.Stop()
		}
		return nil, nil
	})
}

// Role returns the role currently holding the background slot.
func (e *Engine) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job == nil {
		return RoleIdle
	}
	return e.job.role
}

// Listening reports whether the accept loop is running.
func (e *Engine) Listening() bool { return e.listening.Load() }

// Connected reports whether the client session is established.
func (e *Engine) Connected() bool { return e.connected.Load() }

// Addr returns the bound listener address, or nil when not listening.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server == nil {
		return nil
	}
	return e.server.ln.Addr()
}

// Sessions returns the registered server-side sessions ordered by ID.
func (e *Engine) Sessions() []*Session {
	srv := e.currentServer()
	if srv == nil {
		return nil
	}
	return srv.list()
}

// Session looks up a registered server-side session by key.
func (e *Engine) Session(key string) (*Session, bool) {
	srv := e.currentServer()
	if srv == nil {
		return nil, false
	}

	t, ok := srv.sessions.get(key)
	if !ok {
		return nil, false
	}
	return t.session, true
}

// Client returns the client-side session, or nil when not connected.
func (e *Engine) Client() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// Broadcast sends text to every connected server-side session except
// except, which may be nil.
//
// Returns:
//   - The number of sessions the frame was written to
func (e *Engine) Broadcast(text string, except *Session) int {
	sent := 0
	for _, s := range e.Sessions() {
		if s == except || !s.Connected() {
			continue
		}
		if err := s.Send(text); err == nil {
			sent++
		}
	}

	return sent
}

// Metrics returns the collector given with WithMetrics, or nil.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// acquire performs the atomic check-and-set on the background slot.
func (e *Engine) acquire(role Role) (context.Context, *job, error) {
	e.mu.Lock()
	if e.job != nil {
		active := e.job.role
		e.mu.Unlock()

		e.metrics.BusyRejected()
		e.log.Warn("rejected: job is busy",
			logger.Field{Key: "requested", Value: role.String()},
			logger.Field{Key: "active", Value: active.String()})
		e.report(ErrBusy)
		return nil, nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := newJob(role, cancel)
	e.job = j
	e.mu.Unlock()

	return ctx, j, nil
}

// release frees the slot if it still belongs to j.
func (e *Engine) release(j *job) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job != j {
		return
	}

	j.cancel()
	e.job = nil
	if j.role == RoleServer {
		e.server = nil
	} else {
		e.client = nil
	}
}

func (e *Engine) runServer(ctx context.Context, j *job, onMessage MessageFunc) {
	defer close(j.done)

	addr := net.JoinHostPort(e.bindHost, strconv.Itoa(e.port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		aborted := ctx.Err() != nil
		e.release(j)
		if !aborted {
			e.log.Error("server failed to start", logger.Field{Key: "error", Value: err})
			e.report(&OpError{Op: "listen", Addr: addr, Err: err})
		}
		return
	}

	srv := newServer(e, ln, onMessage)
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		_ = ln.Close()
		return
	}
	e.server = srv
	e.mu.Unlock()

	e.listening.Store(true)
	e.log.Info("server is running", logger.Field{Key: "addr", Value: ln.Addr().String()})

	srv.acceptLoop()
	e.listening.Store(false)

	if !srv.stopping.Load() {
		// The listener failed on its own; finish the teardown here so the
		// engine does not stay stuck in the server role.
		srv.stop()
		e.release(j)
		e.log.Info("server stopped")
	}
}

func (e *Engine) runClient(ctx context.Context, j *job, address string, onMessage MessageFunc) {
	defer close(j.done)

	target := net.JoinHostPort(address, strconv.Itoa(e.port))
	dialer := net.Dialer{Timeout: e.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		aborted := ctx.Err() != nil
		e.release(j)
		if !aborted {
			e.log.Error("connect failed", logger.Field{Key: "addr", Value: target}, logger.Field{Key: "error", Value: err})
			e.report(&OpError{Op: "dial", Addr: target, Err: err})
		}
		return
	}

	sess := newSession(e, e.nextID(), conn, RoleClient)
	e.mu.Lock()
	if ctx.Err() != nil {
		e.mu.Unlock()
		_ = sess.close()
		return
	}
	e.client = sess
	e.mu.Unlock()

	e.connected.Store(true)
	e.metrics.SessionOpened()
	e.log.Info("connected to server", logger.Field{Key: "addr", Value: target})

	sess.run(onMessage, e.maxLineLength)

	e.connected.Store(false)
	if err := sess.close(); err != nil {
		sess.log.Debug("close failed", logger.Field{Key: "error", Value: err})
	}
	e.metrics.SessionClosed()
	e.release(j)
	e.log.Info("disconnected from server", logger.Field{Key: "addr", Value: target})
}

func (e *Engine) stop() {
	e.mu.Lock()
	j := e.job
	if j == nil || j.role != RoleServer {
		e.mu.Unlock()
		return
	}
	// Cancel under the lock so runServer either sees the cancellation
	// before publishing its server, or has published it for us to stop.
	j.cancel()
	srv := e.server
	e.mu.Unlock()

	if srv != nil {
		srv.stop()
	}
	<-j.done
	e.release(j)
	e.log.Info("server stopped")
}

func (e *Engine) disconnect() {
	e.mu.Lock()
	j := e.job
	if j == nil || j.role != RoleClient {
		e.mu.Unlock()
		return
	}
	j.cancel()
	sess := e.client
	e.mu.Unlock()

	e.connected.Store(false)
	if sess != nil {
		_ = sess.close()
	}
	<-j.done
	e.release(j)
	e.log.Info("disconnected")
}

func (e *Engine) currentServer() *server {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.server
}

func (e *Engine) nextID() uint32 {
	return e.ids.Add(1)
}

// report forwards err to the error sink. Never call it with e.mu held: the
// sink may call back into the engine.
func (e *Engine) report(err error) {
	e.metrics.RecordError(err.Error())
	if e.onError != nil {
		e.onError(err.Error())
	}
}

func (e *Engine) trackOnline(s *Session) {
	if e.tracker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	entry := presence.Entry{Key: s.key, ID: s.id, Address: s.address, CreatedAt: s.createdAt}
	if err := e.tracker.Online(ctx, entry); err != nil {
		s.log.Warn("presence update failed", logger.Field{Key: "error", Value: err})
	}
}

func (e *Engine) trackOffline(s *Session) {
	if e.tracker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	if err := e.tracker.Offline(ctx, s.key); err != nil {
		s.log.Warn("presence update failed", logger.Field{Key: "error", Value: err})
	}
}
