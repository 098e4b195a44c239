package socketio

import (
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/linechat/logger"
)

// server is the listener manager: it owns the bound listener, the accept
// loop and the registry of accepted sessions.
type server struct {
	engine    *Engine
	ln        net.Listener
	onMessage MessageFunc
	sessions  *registry
	log       logger.Logger

	stopping   atomic.Bool
	acceptDone chan struct{}
	stopOnce   sync.Once
}

func newServer(e *Engine, ln net.Listener, onMessage MessageFunc) *server {
	return &server{
		engine:     e,
		ln:         ln,
		onMessage:  onMessage,
		sessions:   newRegistry(),
		log:        e.log.With(logger.Field{Key: "addr", Value: ln.Addr().String()}),
		acceptDone: make(chan struct{}),
	}
}

// acceptLoop accepts until the listener fails. Closing the listener is the
// normal way to end it, so accept errors are not reported to the sink.
func (s *server) acceptLoop() {
	defer close(s.acceptDone)

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.stopping.Load() && !isClosedErr(err) {
				s.log.Warn("accept loop ended", logger.Field{Key: "error", Value: err})
			}
			return
		}

		s.spawn(conn)
	}
}

// spawn registers the accepted connection before its first read and starts
// its reader without waiting for it.
func (s *server) spawn(conn net.Conn) {
	sess := newSession(s.engine, s.engine.nextID(), conn, RoleServer)
	sess.srv = s

	t := newReaderTask(sess)
	s.sessions.insert(t)
	s.engine.metrics.SessionOpened()
	s.engine.trackOnline(sess)
	s.log.Info("client connected", logger.Field{Key: "remote", Value: sess.remoteAddr}, logger.Field{Key: "id", Value: sess.id})

	go s.serve(t)
}

// serve is the reader task of one accepted session. Removing the registry
// entry is its last step, after the socket has been released.
func (s *server) serve(t *readerTask) {
	defer close(t.done)

	sess := t.session
	sess.run(s.onMessage, s.engine.maxLineLength)

	if err := sess.close(); err != nil {
		sess.log.Debug("close failed", logger.Field{Key: "error", Value: err})
	}
	s.engine.trackOffline(sess)
	s.engine.metrics.SessionClosed()
	s.sessions.remove(sess.key, t)

	sess.log.Info("client disconnected")
}

// disconnect closes one registered session on behalf of a moderator. The
// reader then unblocks and performs the usual cleanup.
func (s *server) disconnect(key string) bool {
	t, ok := s.sessions.get(key)
	if !ok {
		return false
	}

	_ = t.session.close()
	t.session.log.Info("disconnected by moderator")
	return true
}

// closeSessions closes every registered socket, waits for each reader to
// finish and clears the registry. Closing the socket first is what unblocks
// a reader parked in a read.
func (s *server) closeSessions() {
	var g errgroup.Group
	for _, t := range s.sessions.snapshot() {
		t := t
		g.Go(func() error {
			err := t.session.close()
			<-t.done
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Warn("session close failed", logger.Field{Key: "error", Value: err})
	}
	s.sessions.clear()
}

// stop tears the listener down: sessions first, then the listener itself,
// then a final sweep for clients accepted while the first sweep ran.
func (s *server) stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		s.closeSessions()
		_ = s.ln.Close()
		<-s.acceptDone
		s.closeSessions()
	})
}

func (s *server) list() []*Session {
	tasks := s.sessions.snapshot()
	out := make([]*Session, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.session)
	}

	return out
}
