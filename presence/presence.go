// Package presence records which server-side chat sessions are currently
// online so that operators, or other processes sharing a backend, can list
// them without touching the socket engine.
package presence

import (
	"context"
	"sort"
	"time"
)

// Entry describes one online session.
type Entry struct {
	Key       string    `json:"key"`
	ID        uint32    `json:"id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Tracker stores online entries. Implementations must be safe for
// concurrent use; the engine calls Online and Offline from every session's
// reader goroutine.
type Tracker interface {
	// Online records e as connected, replacing any entry with the same key.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - e: The session entry to store
	//
	// Returns:
	//   - An error if the backend rejected the write
	Online(ctx context.Context, e Entry) error

	// Offline removes the entry stored under key. Removing a missing key
	// is not an error.
	Offline(ctx context.Context, key string) error

	// List returns every online entry ordered by creation time.
	List(ctx context.Context) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
