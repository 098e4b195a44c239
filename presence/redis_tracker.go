package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the hash used by RedisTracker.
const DefaultRedisPrefix = "linechat"

// RedisTracker stores entries as JSON values in a single Redis hash named
// "{prefix}:sessions", keyed by session key. Several servers pointed at the
// same Redis and prefix share one online list.
type RedisTracker struct {
	client    *redis.Client
	hash      string
	ownClient bool
}

// NewRedisTracker creates a RedisTracker on an existing client. The caller
// keeps ownership of client; Close does not close it.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	tracker := NewRedisTracker(client, "linechat")
func NewRedisTracker(client *redis.Client, prefix string) *RedisTracker {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisTracker{
		client: client,
		hash:   prefix + ":sessions",
	}
}

// DialRedisTracker connects to addr, verifies the server answers PING and
// returns a tracker that owns the connection.
//
// Returns:
//   - The tracker, or an error if Redis is unreachable
func DialRedisTracker(ctx context.Context, addr, prefix string) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	t := NewRedisTracker(client, prefix)
	t.ownClient = true
	return t, nil
}

// Online implements Tracker.
func (r *RedisTracker) Online(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if err := r.client.HSet(ctx, r.hash, e.Key, data).Err(); err != nil {
		return fmt.Errorf("redis hset error: %w", err)
	}

	return nil
}

// Offline implements Tracker.
func (r *RedisTracker) Offline(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel error: %w", err)
	}

	return nil
}

// List implements Tracker. Values that fail to decode are skipped.
func (r *RedisTracker) List(ctx context.Context) ([]Entry, error) {
	values, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall error: %w", err)
	}

	entries := make([]Entry, 0, len(values))
	for _, raw := range values {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	sortEntries(entries)
	return entries, nil
}

// Close implements Tracker.
func (r *RedisTracker) Close() error {
	if !r.ownClient {
		return nil
	}

	return r.client.Close()
}
