package socketio

import (
	"time"

	"github.com/cyberinferno/linechat/logger"
	"github.com/cyberinferno/linechat/metrics"
	"github.com/cyberinferno/linechat/presence"
)

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithBindHost restricts the listener to one local interface, e.g.
// "127.0.0.1". The default binds every interface.
func WithBindHost(host string) Option {
	return func(e *Engine) { e.bindHost = host }
}

// WithDialTimeout bounds the connect attempt; zero means no timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(e *Engine) { e.dialTimeout = d }
}

// WithWriteTimeout bounds each Send; zero (the default) means no timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Engine) { e.writeTimeout = d }
}

// WithMaxLineLength sets the longest accepted incoming line in bytes.
// Non-positive values keep DefaultMaxLineLength.
func WithMaxLineLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLineLength = n
		}
	}
}

// WithPresence records every accepted session in t while it is online.
func WithPresence(t presence.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithMetrics records session, message and error counts in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}
