package config

import "time"

const (
	// DefaultPort is used both for listening and as the remote port.
	DefaultPort = 9999

	// DefaultHost is the server dialed in client mode.
	DefaultHost = "localhost"

	// DefaultDialTimeout bounds a connect attempt.
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxLineLength is the longest incoming line in bytes.
	DefaultMaxLineLength = 64 * 1024

	// DefaultLogLevel is the minimum level written to the log.
	DefaultLogLevel = "info"

	// DefaultLogFormat picks console output on a terminal and JSON otherwise.
	DefaultLogFormat = LogFormatAuto

	// DefaultPresenceBackend keeps the online list in process memory.
	DefaultPresenceBackend = PresenceMemory

	// DefaultRedisAddr is the presence store address for the redis backend.
	DefaultRedisAddr = "localhost:6379"

	// DefaultRedisPrefix namespaces presence keys in Redis.
	DefaultRedisPrefix = "linechat"

	// DefaultEnvPrefix prefixes every supported environment variable.
	DefaultEnvPrefix = "LINECHAT_"
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		Port:          DefaultPort,
		Host:          DefaultHost,
		DialTimeout:   DefaultDialTimeout,
		MaxLineLength: DefaultMaxLineLength,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Presence: PresenceConfig{
			Backend:     DefaultPresenceBackend,
			RedisAddr:   DefaultRedisAddr,
			RedisPrefix: DefaultRedisPrefix,
		},
	}
}
