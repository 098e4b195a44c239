package socketio

import (
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrBusy is returned (and reported to the error sink) when Listen or
	// Connect is called while another role still owns the background slot.
	ErrBusy = errors.New("job is busy")

	// ErrNotTracked is returned by ModeratorDisconnect on a session that is
	// not registered with a listener, i.e. the outbound client session.
	ErrNotTracked = errors.New("session is not tracked by a listener")
)

// OpError describes a failed bind, dial or write.
type OpError struct {
	Op   string // "listen", "dial" or "write"
	Addr string // address involved
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// isClosedErr reports whether err is the normal end of a connection: EOF or
// an operation on a socket we closed ourselves.
func isClosedErr(err error) bool {
	if err == nil {
		return true
	}

	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
