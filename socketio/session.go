package socketio

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/linechat/logger"
)

// Session is one established TCP connection, either accepted by the
// listener or dialed by the connector. It exclusively owns the connection;
// callers interact with the peer only through Send and ModeratorDisconnect.
type Session struct {
	id         uint32
	key        string
	address    string
	remoteAddr string
	createdAt  time.Time
	role       Role

	conn      net.Conn
	writeMu   sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once
	closeErr  error

	engine *Engine
	srv    *server // set for listener-tracked sessions only
	log    logger.Logger
}

func newSession(e *Engine, id uint32, conn net.Conn, role Role) *Session {
	remote := conn.RemoteAddr().String()
	address := remote
	if host, _, err := net.SplitHostPort(remote); err == nil {
		address = host
	}

	s := &Session{
		id:         id,
		key:        fmt.Sprintf("%s->%s", conn.LocalAddr(), remote),
		address:    address,
		remoteAddr: remote,
		createdAt:  time.Now(),
		role:       role,
		conn:       conn,
		engine:     e,
	}
	s.connected.Store(true)
	s.log = e.log.With(logger.Field{Key: "session", Value: s.key}, logger.Field{Key: "id", Value: id})

	return s
}

// ID returns the engine-wide sequence number assigned at construction.
func (s *Session) ID() uint32 { return s.id }

// Key returns the session identity, "local->remote" endpoint pair.
func (s *Session) Key() string { return s.key }

// Address returns the remote host without port.
func (s *Session) Address() string { return s.address }

// RemoteAddr returns the remote "host:port".
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// CreatedAt returns when the session was constructed.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Role returns RoleServer for accepted sessions and RoleClient for the
// dialed one.
func (s *Session) Role() Role { return s.role }

// Connected is the liveness flag. It starts true and turns false exactly
// once, when the reader ends or the session is closed.
func (s *Session) Connected() bool { return s.connected.Load() }

// String implements fmt.Stringer.
func (s *Session) String() string { return s.key }

// Send writes message followed by a line feed and flushes it as one frame.
// It is a no-op returning nil once the session is no longer connected. A
// write failure is reported to the error sink and returned, but does not
// close the session. Safe for concurrent use.
//
// Parameters:
//   - message: Text to send; an embedded line feed splits it into two frames
//
// Returns:
//   - nil on success or when not connected; an *OpError if the write failed
func (s *Session) Send(message string) error {
	if !s.connected.Load() {
		return nil
	}

	frame := make([]byte, 0, len(message)+1)
	frame = append(frame, message...)
	frame = append(frame, '\n')

	// The sink may call Send again, so report only after unlocking.
	if err := s.write(frame); err != nil {
		opErr := &OpError{Op: "write", Addr: s.remoteAddr, Err: err}
		s.log.Warn("send failed", logger.Field{Key: "error", Value: err})
		s.engine.report(opErr)
		return opErr
	}

	s.engine.metrics.MessageSent(len(frame))
	s.log.Debug("sent", logger.Field{Key: "text", Value: message})
	return nil
}

// write puts one frame on the wire under the write lock.
func (s *Session) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.engine.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.engine.writeTimeout)); err == nil {
			defer func() {
				_ = s.conn.SetWriteDeadline(time.Time{})
			}()
		}
	}

	_, err := s.conn.Write(frame)
	return err
}

// ModeratorDisconnect forcibly closes a listener-tracked session. The
// socket is closed before it returns and the liveness flag is false; the
// registry entry disappears once the session's reader has delivered its
// final disconnected event. It does not wait for the reader, so it may be
// called from inside a MessageFunc.
//
// Returns:
//   - ErrNotTracked for the client-side session, nil otherwise
func (s *Session) ModeratorDisconnect() error {
	if s.srv == nil {
		return ErrNotTracked
	}

	if s.connected.Load() {
		s.srv.disconnect(s.key)
	}
	s.markDisconnected()

	return nil
}

// markDisconnected flips the liveness flag. It returns true only for the
// call that performed the transition.
func (s *Session) markDisconnected() bool {
	return s.connected.CompareAndSwap(true, false)
}

// close flips liveness and releases the socket. Repeated calls return the
// first result; closing an already closed socket is not an error.
func (s *Session) close() error {
	s.markDisconnected()
	s.closeOnce.Do(func() {
		err := s.conn.Close()
		if !isClosedErr(err) {
			s.closeErr = err
		}
	})

	return s.closeErr
}
