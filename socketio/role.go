package socketio

import "context"

// Role is the engine's current mode. Exactly one role is active at a time.
// A session's Role tells which side of the connection it represents.
type Role int

const (
	RoleIdle   Role = iota // no background job
	RoleServer             // listening and accepting clients
	RoleClient             // connected to one remote server
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "Idle"
	case RoleServer:
		return "Server"
	case RoleClient:
		return "Client"
	default:
		return "Unknown"
	}
}

// job is the single background slot of an Engine. It is created when a role
// starts and cleared when the role is torn down; while it is set every other
// Listen or Connect is rejected.
type job struct {
	role   Role
	cancel context.CancelFunc
	done   chan struct{} // closed when the role's goroutine returns
}

func newJob(role Role, cancel context.CancelFunc) *job {
	return &job{
		role:   role,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}
