// Package notify forwards error-sink messages to a Discord channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cyberinferno/linechat/logger"
)

// DefaultTimeout bounds one webhook request.
const DefaultTimeout = 5 * time.Second

// Discord posts messages to a Discord webhook.
type Discord struct {
	webhook string
	client  *http.Client
	log     logger.Logger
	prefix  string
	timeout time.Duration
}

// Option configures a Discord notifier.
type Option func(*Discord)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Discord) {
		if c != nil {
			d.client = c
		}
	}
}

// WithLogger sets the logger used for failed posts.
func WithLogger(l logger.Logger) Option {
	return func(d *Discord) {
		if l != nil {
			d.log = l
		}
	}
}

// WithPrefix prepends prefix and a space to every message, e.g. the host name.
func WithPrefix(prefix string) Option {
	return func(d *Discord) { d.prefix = prefix }
}

// NewDiscord creates a notifier for the given webhook URL.
//
// Parameters:
//   - webhook: The Discord webhook URL to POST to
//   - opts: Optional settings
//
// Returns:
//   - A new *Discord
func NewDiscord(webhook string, opts ...Option) *Discord {
	d := &Discord{
		webhook: webhook,
		client:  &http.Client{},
		log:     logger.NewNopLogger(),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Notify sends content as the "content" field of the webhook body.
//
// Parameters:
//   - ctx: Bounds the request
//   - content: The message to send
//
// Returns:
//   - An error if the request could not be built or sent, or Discord answered
//     with a non-2xx status
func (d *Discord) Notify(ctx context.Context, content string) error {
	if d.prefix != "" {
		content = d.prefix + " " + content
	}

	body, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: unexpected status %s", resp.Status)
	}

	return nil
}

// Sink returns an error-sink function that posts each message in the
// background. Failures are logged and otherwise ignored.
func (d *Discord) Sink() func(message string) {
	return func(message string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := d.Notify(ctx, message); err != nil {
				d.log.Warn("discord notification failed", logger.Field{Key: "error", Value: err})
			}
		}()
	}
}

// Tee combines sinks into one; nil entries are skipped.
func Tee(sinks ...func(message string)) func(message string) {
	return func(message string) {
		for _, sink := range sinks {
			if sink != nil {
				sink(message)
			}
		}
	}
}
