package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/cyberinferno/linechat/config"
	"github.com/cyberinferno/linechat/console"
	"github.com/cyberinferno/linechat/logger"
	"github.com/cyberinferno/linechat/metrics"
	"github.com/cyberinferno/linechat/notify"
	"github.com/cyberinferno/linechat/presence"
	"github.com/cyberinferno/linechat/socketio"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

const serviceName = "linechat"

type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// execute parses args and runs the console until it quits.
func execute(ctx context.Context, args []string, std stdio) error {
	cfg, done, err := parseConfig(args, std.err)
	if err != nil || done {
		return err
	}

	log, err := newLogger(cfg, std.err)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	tracker, err := newTracker(ctx, cfg)
	if err != nil {
		return fmt.Errorf("presence: %w", err)
	}
	if tracker != nil {
		defer func() { _ = tracker.Close() }()
	}

	con := console.New(console.Options{
		In:       std.in,
		Out:      std.out,
		Listen:   cfg.Listen,
		Host:     cfg.Host,
		Relay:    cfg.Relay,
		Log:      log,
		Presence: tracker,
	})

	sink := con.ErrorFunc()
	if cfg.DiscordWebhook != "" {
		hostname, _ := os.Hostname()
		discord := notify.NewDiscord(cfg.DiscordWebhook,
			notify.WithLogger(log),
			notify.WithPrefix("["+hostname+"]"))
		sink = notify.Tee(sink, discord.Sink())
	}

	opts := []socketio.Option{
		socketio.WithLogger(log),
		socketio.WithBindHost(cfg.BindHost),
		socketio.WithDialTimeout(cfg.DialTimeout),
		socketio.WithWriteTimeout(cfg.WriteTimeout),
		socketio.WithMaxLineLength(cfg.MaxLineLength),
		socketio.WithMetrics(metrics.New()),
	}
	if tracker != nil {
		opts = append(opts, socketio.WithPresence(tracker))
	}

	engine := socketio.New(cfg.Port, sink, opts...)
	log.Info("starting",
		logger.Field{Key: "version", Value: version},
		logger.Field{Key: "listen", Value: cfg.Listen},
		logger.Field{Key: "port", Value: cfg.Port})

	return con.Run(ctx, engine)
}

// parseConfig builds the configuration from defaults, the optional config
// file, LINECHAT_* variables and finally the flags that were set. done is
// true when the invocation only asked for help or the version.
func parseConfig(args []string, stderr io.Writer) (cfg *config.Config, done bool, err error) {
	defaults := config.Default()
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath string
		flagCfg    = *defaults
	)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&flagCfg.Listen, "listen", "l", defaults.Listen, "Listen for clients instead of connecting")
	fs.IntVarP(&flagCfg.Port, "port", "p", defaults.Port, "Port to listen on or connect to")
	fs.StringVar(&flagCfg.BindHost, "bind", defaults.BindHost, "Local address to listen on (all interfaces if empty)")
	fs.DurationVar(&flagCfg.DialTimeout, "dial-timeout", defaults.DialTimeout, "Connect timeout")
	fs.DurationVar(&flagCfg.WriteTimeout, "write-timeout", defaults.WriteTimeout, "Per-message write timeout (0 disables)")
	fs.IntVar(&flagCfg.MaxLineLength, "max-line-length", defaults.MaxLineLength, "Longest accepted incoming line in bytes")
	fs.BoolVar(&flagCfg.Relay, "relay", defaults.Relay, "Forward each client line to the other clients (with -l)")

	// ── integrations ─────────────────────────────────────────────
	fs.StringVar(&flagCfg.Presence.Backend, "presence", defaults.Presence.Backend, "Online list backend: memory, redis or none")
	fs.StringVar(&flagCfg.Presence.RedisAddr, "redis-addr", defaults.Presence.RedisAddr, "Redis address for --presence redis")
	fs.StringVar(&flagCfg.Presence.RedisPrefix, "redis-prefix", defaults.Presence.RedisPrefix, "Redis key prefix")
	fs.StringVar(&flagCfg.DiscordWebhook, "discord-webhook", defaults.DiscordWebhook, "Post errors to this Discord webhook")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&flagCfg.Log.Level, "log-level", defaults.Log.Level, "Log level: debug, info, warn, error or disabled")
	fs.StringVar(&flagCfg.Log.Format, "log-format", defaults.Log.Format, "Log format: auto, console or json")
	fs.StringVar(&flagCfg.Log.File, "log-file", defaults.Log.File, "Append JSON logs to this file instead of stderr")

	fs.StringVarP(&configPath, "config", "c", "", "YAML config file")
	var showVersion bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	fs.Usage = func() { printUsage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if showVersion {
		fmt.Fprintf(stderr, "%s %s\n", serviceName, version)
		return nil, true, nil
	}

	cfg = config.Default()
	if configPath != "" {
		if err := config.LoadFile(cfg, configPath); err != nil {
			return nil, false, err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, false, err
	}
	applyFlags(fs, cfg, &flagCfg)

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		cfg.Host = rest[0]
	default:
		return nil, false, fmt.Errorf("too many arguments: %v", rest)
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	return cfg, false, nil
}

// applyFlags copies only the flags given on the command line, so unset
// flags do not mask file or environment values.
func applyFlags(fs *flag.FlagSet, cfg, from *config.Config) {
	set := map[string]func(){
		"listen":          func() { cfg.Listen = from.Listen },
		"port":            func() { cfg.Port = from.Port },
		"bind":            func() { cfg.BindHost = from.BindHost },
		"dial-timeout":    func() { cfg.DialTimeout = from.DialTimeout },
		"write-timeout":   func() { cfg.WriteTimeout = from.WriteTimeout },
		"max-line-length": func() { cfg.MaxLineLength = from.MaxLineLength },
		"relay":           func() { cfg.Relay = from.Relay },
		"presence":        func() { cfg.Presence.Backend = from.Presence.Backend },
		"redis-addr":      func() { cfg.Presence.RedisAddr = from.Presence.RedisAddr },
		"redis-prefix":    func() { cfg.Presence.RedisPrefix = from.Presence.RedisPrefix },
		"discord-webhook": func() { cfg.DiscordWebhook = from.DiscordWebhook },
		"log-level":       func() { cfg.Log.Level = from.Log.Level },
		"log-format":      func() { cfg.Log.Format = from.Log.Format },
		"log-file":        func() { cfg.Log.File = from.Log.File },
	}

	fs.Visit(func(f *flag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
}

// newLogger writes JSON to the configured log file, or to w: human-readable
// on a terminal and JSON otherwise, unless the format is forced.
func newLogger(cfg *config.Config, w io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return logger.NewWriterLogger(f, serviceName, level), nil
	}

	format := cfg.Log.Format
	if format == config.LogFormatAuto {
		format = config.LogFormatJSON
		if isTerminal(w) {
			format = config.LogFormatConsole
		}
	}

	if format == config.LogFormatConsole {
		return logger.NewConsoleLogger(w, serviceName, level), nil
	}
	return logger.NewZerologLogger(zerolog.New(w), serviceName, level), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newTracker returns nil when presence tracking is disabled.
func newTracker(ctx context.Context, cfg *config.Config) (presence.Tracker, error) {
	switch cfg.Presence.Backend {
	case config.PresenceMemory:
		return presence.NewMemoryTracker(cfg.Presence.TTL, time.Minute), nil
	case config.PresenceRedis:
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		tracker, err := presence.DialRedisTracker(ctx, cfg.Presence.RedisAddr, cfg.Presence.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return tracker, nil
	default:
		return nil, nil
	}
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `linechat v%s

Line-oriented TCP chat.

Usage:
  linechat [options] [host]        Connect to host
  linechat -l [options]            Listen for clients

Console commands (listen mode):
  /who        List online sessions
  /kick <id>  Disconnect a session
  /stats      Print counters
  /quit       Leave

Options:
`, version)
	fs.PrintDefaults()
}
