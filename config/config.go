// Package config defines the runtime configuration of the linechat binary.
//
// Precedence order (highest wins):
//  1. CLI flags (cmd/linechat)
//  2. Environment variables (LoadFromEnv)
//  3. Config file (LoadFile)
//  4. Defaults (Default)
package config

import (
	"fmt"
	"time"

	"github.com/cyberinferno/linechat/logger"
)

// Log output formats.
const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Presence backends.
const (
	PresenceNone   = "none"
	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

// Config holds every tuneable of one linechat process.
type Config struct {
	Listen        bool          `yaml:"listen"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	BindHost      string        `yaml:"bind_host"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	MaxLineLength int           `yaml:"max_line_length"`
	Relay         bool          `yaml:"relay"`

	Log            LogConfig      `yaml:"log"`
	Presence       PresenceConfig `yaml:"presence"`
	DiscordWebhook string         `yaml:"discord_webhook"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // JSON log file, appended to; stderr when empty
}

// PresenceConfig selects where the online-session list is kept.
type PresenceConfig struct {
	Backend     string        `yaml:"backend"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 0-65535", c.Port)
	}
	if !c.Listen {
		if c.Host == "" {
			return fmt.Errorf("host is required in client mode")
		}
		if c.Port == 0 {
			return fmt.Errorf("client mode requires a non-zero port")
		}
		if c.Relay {
			return fmt.Errorf("relay is only available in listen mode")
		}
	}

	if c.DialTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.MaxLineLength <= 0 {
		return fmt.Errorf("max line length must be positive, got %d", c.MaxLineLength)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	switch c.Presence.Backend {
	case PresenceNone, PresenceMemory:
	case PresenceRedis:
		if c.Presence.RedisAddr == "" {
			return fmt.Errorf("presence backend redis requires an address")
		}
	default:
		return fmt.Errorf("unknown presence backend %q", c.Presence.Backend)
	}
	if c.Presence.TTL < 0 {
		return fmt.Errorf("presence ttl must not be negative")
	}

	return nil
}
