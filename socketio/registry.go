package socketio

import (
	"fmt"
	"sort"
	"sync"
)

// readerTask is the registry's handle on one session's reader goroutine.
type readerTask struct {
	session *Session
	done    chan struct{} // closed after the reader has removed itself
}

func newReaderTask(s *Session) *readerTask {
	return &readerTask{session: s, done: make(chan struct{})}
}

// registry maps session keys to reader tasks for every client a listener
// has accepted. The accept loop inserts and each reader removes itself, so
// every method is safe for concurrent use.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*readerTask
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*readerTask)}
}

// insert stores t under its session key. If a stale entry with the same
// endpoint pair is still draining, the key is made unique by appending the
// session ID, and the session is updated to carry the final key.
func (r *registry) insert(t *readerTask) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.entries[t.session.key]; taken {
		t.session.key = fmt.Sprintf("%s#%d", t.session.key, t.session.id)
	}
	r.entries[t.session.key] = t
}

// remove deletes key only if it still maps to t.
func (r *registry) remove(key string, t *readerTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[key]; ok && cur == t {
		delete(r.entries, key)
		return true
	}

	return false
}

func (r *registry) get(key string) (*readerTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.entries[key]
	return t, ok
}

// snapshot returns the current tasks ordered by session ID.
func (r *registry) snapshot() []*readerTask {
	r.mu.RLock()
	tasks := make([]*readerTask, 0, len(r.entries))
	for _, t := range r.entries {
		tasks = append(tasks, t)
	}
	r.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].session.id < tasks[j].session.id
	})

	return tasks
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*readerTask)
}
