package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current value.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// LoadFromEnv overlays LINECHAT_* environment variables onto cfg. Only
// non-empty variables override. Boolean values accept "1", "true" and "yes"
// (case-insensitive); durations use time.ParseDuration syntax.
func LoadFromEnv(cfg *Config) error {
	return loadFromLookup(cfg, os.LookupEnv)
}

func loadFromLookup(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) string {
		v, _ := lookup(DefaultEnvPrefix + name)
		return strings.TrimSpace(v)
	}

	if v := get("LISTEN"); v != "" {
		cfg.Listen = parseBool(v)
	}
	if v := get("HOST"); v != "" {
		cfg.Host = v
	}
	if v := get("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", DefaultEnvPrefix, err)
		}
		cfg.Port = n
	}
	if v := get("BIND_HOST"); v != "" {
		cfg.BindHost = v
	}
	if v := get("DIAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sDIAL_TIMEOUT: %w", DefaultEnvPrefix, err)
		}
		cfg.DialTimeout = d
	}
	if v := get("WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sWRITE_TIMEOUT: %w", DefaultEnvPrefix, err)
		}
		cfg.WriteTimeout = d
	}
	if v := get("MAX_LINE_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_LINE_LENGTH: %w", DefaultEnvPrefix, err)
		}
		cfg.MaxLineLength = n
	}
	if v := get("RELAY"); v != "" {
		cfg.Relay = parseBool(v)
	}

	if v := get("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := get("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := get("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}

	if v := get("PRESENCE"); v != "" {
		cfg.Presence.Backend = v
	}
	if v := get("REDIS_ADDR"); v != "" {
		cfg.Presence.RedisAddr = v
	}
	if v := get("REDIS_PREFIX"); v != "" {
		cfg.Presence.RedisPrefix = v
	}

	if v := get("DISCORD_WEBHOOK"); v != "" {
		cfg.DiscordWebhook = v
	}

	return nil
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}
