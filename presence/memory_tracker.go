package presence

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryTracker is an in-process Tracker backed by go-cache. Entries expire
// after the configured TTL even if Offline is never called, which bounds the
// damage of a crashed reader.
type MemoryTracker struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryTracker creates a MemoryTracker.
//
// Parameters:
//   - ttl: Lifetime of each entry; zero or negative keeps entries until Offline
//   - cleanupInterval: Interval at which expired entries are purged
//
// Returns:
//   - A new *MemoryTracker
func NewMemoryTracker(ttl, cleanupInterval time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}

	return &MemoryTracker{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Online implements Tracker.
func (m *MemoryTracker) Online(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.cache.Set(e.Key, e, m.ttl)
	return nil
}

// Offline implements Tracker.
func (m *MemoryTracker) Offline(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.cache.Delete(key)
	return nil
}

// List implements Tracker.
func (m *MemoryTracker) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := m.cache.Items()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if e, ok := item.Object.(Entry); ok {
			entries = append(entries, e)
		}
	}

	sortEntries(entries)
	return entries, nil
}

// Close implements Tracker. It drops every entry.
func (m *MemoryTracker) Close() error {
	m.cache.Flush()
	return nil
}
