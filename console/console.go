// Package console is the interactive front end of the linechat binary. It
// prints every session event to an output stream and turns operator input
// into outgoing messages or moderator commands.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/linechat/logger"
	"github.com/cyberinferno/linechat/presence"
	"github.com/cyberinferno/linechat/socketio"
)

// TimestampLayout prefixes every printed line.
const TimestampLayout = "06-01-02/15:04:05"

// Options configures a Console.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Listen bool   // server mode when true, client mode otherwise
	Host   string // server to dial in client mode
	Relay  bool   // forward each received line to the other sessions
	Log    logger.Logger

	// Presence, when set, backs /who instead of the local session list.
	Presence presence.Tracker
}

// Console binds operator input and output to one Engine.
type Console struct {
	opts Options
	log  logger.Logger

	outMu sync.Mutex

	engine    *socketio.Engine
	ended     chan struct{}
	endedOnce sync.Once
}

// New creates a Console. It must be given to the engine as its error sink
// through ErrorFunc before Run is called.
//
// Parameters:
//   - opts: In and Out are required; the rest is optional
//
// Returns:
//   - A new *Console
func New(opts Options) *Console {
	log := opts.Log
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Console{
		opts:  opts,
		log:   log,
		ended: make(chan struct{}),
	}
}

// ErrorFunc returns the engine error sink that prints each failure.
func (c *Console) ErrorFunc() socketio.ErrorFunc {
	return c.printError
}

// Run starts the configured role on e and processes operator input until
// /quit, end of input, cancellation of ctx, a failed bind or dial or, in
// client mode, the end of the connection. The engine is disposed before Run
// returns.
//
// Returns:
//   - An error if the role could not be started
func (c *Console) Run(ctx context.Context, e *socketio.Engine) error {
	c.engine = e
	defer e.Dispose()

	var err error
	if c.opts.Listen {
		err = e.Listen(c.onMessage)
	} else {
		err = e.Connect(c.opts.Host, c.onMessage)
	}
	if err != nil {
		return err
	}

	lines := make(chan string)
	go c.readInput(ctx, lines)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("console shutting down", logger.Field{Key: "reason", Value: ctx.Err()})
			return nil
		case <-c.ended:
			return nil
		case line, ok := <-lines:
			if !ok {
				c.log.Info("console input closed")
				return nil
			}
			if quit := c.handle(line); quit {
				return nil
			}
		}
	}
}

func (c *Console) readInput(ctx context.Context, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(c.opts.In)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil {
		c.log.Warn("console input failed", logger.Field{Key: "error", Value: err})
	}
}

// handle processes one operator line and reports whether to quit.
func (c *Console) handle(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(line)
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true
	case "/who":
		c.who()
	case "/kick":
		if len(fields) != 2 {
			c.printf("usage: /kick <id>")
			return false
		}
		c.kick(fields[1])
	case "/stats":
		c.stats()
	default:
		c.printf("unknown command %s", fields[0])
	}

	return false
}

func (c *Console) send(text string) {
	if c.opts.Listen {
		if n := c.engine.Broadcast(text, nil); n == 0 {
			c.printf("no connected sessions")
		}
		return
	}

	client := c.engine.Client()
	if client == nil {
		c.printf("not connected")
		return
	}
	_ = client.Send(text)
}

func (c *Console) who() {
	if !c.opts.Listen {
		c.printf("/who is only available in listen mode")
		return
	}

	if c.opts.Presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		entries, err := c.opts.Presence.List(ctx)
		if err != nil {
			c.printf("presence lookup failed: %v", err)
			return
		}
		c.printf("%d online", len(entries))
		for _, en := range entries {
			c.printf("  #%d %s %s since %s", en.ID, en.Key, en.Address, en.CreatedAt.Format(TimestampLayout))
		}
		return
	}

	sessions := c.engine.Sessions()
	c.printf("%d online", len(sessions))
	for _, s := range sessions {
		c.printf("  #%d %s %s since %s", s.ID(), s.Key(), s.Address(), s.CreatedAt().Format(TimestampLayout))
	}
}

func (c *Console) kick(arg string) {
	if !c.opts.Listen {
		c.printf("/kick is only available in listen mode")
		return
	}

	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 32)
	if err != nil {
		c.printf("invalid session id %q", arg)
		return
	}

	for _, s := range c.engine.Sessions() {
		if s.ID() != uint32(id) {
			continue
		}
		if err := s.ModeratorDisconnect(); err != nil {
			c.printf("kick failed: %v", err)
			return
		}
		c.printf("kicked %s", s.Key())
		return
	}

	c.printf("no session #%d", id)
}

func (c *Console) stats() {
	m := c.engine.Metrics()
	if m == nil {
		c.printf("metrics are disabled")
		return
	}
	c.printf("%s", m.JSON())
}

func (c *Console) onMessage(s *socketio.Session, msg socketio.Message) {
	c.printAt(msg.At, "%s %s: %s", s.Key(), s.Address(), msg.Text)

	if msg.Kind == socketio.EventMessage && c.opts.Listen && c.opts.Relay {
		c.engine.Broadcast(s.Address()+": "+msg.Text, s)
	}
	if msg.Kind == socketio.EventDisconnected && !c.opts.Listen {
		c.end()
	}
}

func (c *Console) printError(message string) {
	c.printf("error: %s", message)

	// A failed bind or dial leaves the engine idle with nothing left to end Run.
	if c.engine != nil && c.engine.Role() == socketio.RoleIdle {
		c.end()
	}
}

func (c *Console) end() {
	c.endedOnce.Do(func() { close(c.ended) })
}

func (c *Console) printf(format string, args ...any) {
	c.printAt(time.Now(), format, args...)
}

func (c *Console) printAt(at time.Time, format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	_, _ = fmt.Fprintf(c.opts.Out, "[%s] %s\n", at.Format(TimestampLayout), fmt.Sprintf(format, args...))
}
