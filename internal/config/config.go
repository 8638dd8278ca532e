package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries all environment-driven settings for the server process.
// Every field has a usable default so a bare `go run` works out of the box.
type Config struct {
	// Port is the listen address for the HTTP/WebSocket server, e.g. ":8008".
	Port string

	// DBPath is the SQLite database file path.
	DBPath string

	// LogLevel is a zerolog level string (trace, debug, info, warn, error).
	LogLevel string

	// SweepInterval is how often the liveness supervisor runs.
	SweepInterval time.Duration

	// ConnectionTimeout is how long a connection may go unseen before the
	// sweep removes it.
	ConnectionTimeout time.Duration

	// HeartbeatInterval is the per-connection keepalive period.
	HeartbeatInterval time.Duration
}

// Load reads configuration from the environment, falling back to defaults.
func Load() Config {
	return Config{
		Port:              getEnv("PORT", ":8008"),
		DBPath:            getEnv("DB_PATH", "collab-editor.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SweepInterval:     getDuration("SWEEP_INTERVAL", 120*time.Second),
		ConnectionTimeout: getDuration("CONNECTION_TIMEOUT", 120*time.Second),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration accepts either a Go duration string ("90s", "2m") or a plain
// number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
