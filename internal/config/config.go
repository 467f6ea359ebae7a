// Package config loads the server's typed configuration from flags with
// environment-variable fallback, in the style of the teacher's
// flag.FlagSet-based command parsing, generalized to pflag because
// cmd/meshd has more than one subcommand sharing these flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// Config carries the server's operator-facing knobs (spec §6.2) plus the
// ambient fields every deployed instance of this stack needs.
type Config struct {
	Host               string
	Port               int
	MaxConnections     int
	ConnectionTimeout  time.Duration
	HeartbeatInterval  time.Duration
	BufferSize         int
	WorkerThreads      int
	RateLimitPerMinute int

	LogLevel    string
	LogFormat   string
	DataDir     string
	MetricsAddr string
	KeyPath     string
}

// Defaults returns the configuration with every field set to the value a
// bare `meshd serve` should run with.
func Defaults() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8443,
		MaxConnections:     10000,
		ConnectionTimeout:  60 * time.Second,
		HeartbeatInterval:  30 * time.Second,
		BufferSize:         8192,
		WorkerThreads:      0,
		RateLimitPerMinute: 60,

		LogLevel:    "info",
		LogFormat:   "text",
		DataDir:     "",
		MetricsAddr: ":9090",
		KeyPath:     "",
	}
}

// BindFlags registers c's fields on fs, using c's current values as
// defaults. Call Defaults() first to get the baseline, then BindFlags,
// then fs.Parse, then ApplyEnv to let MESHD_* environment variables
// override anything the caller didn't pass explicitly on the command line.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "address to bind")
	fs.IntVar(&c.Port, "port", c.Port, "port to listen on")
	fs.IntVar(&c.MaxConnections, "max-connections", c.MaxConnections, "cap on pending+authenticated connections")
	fs.DurationVar(&c.ConnectionTimeout, "connection-timeout", c.ConnectionTimeout, "per-connection idle timeout")
	fs.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "writer-idle interval before a HEARTBEAT is sent")
	fs.IntVar(&c.BufferSize, "buffer-size", c.BufferSize, "per-connection read buffer size in bytes (accepted but not read by the server; frames are buffered at the fixed 8192-byte frame limit)")
	fs.IntVar(&c.WorkerThreads, "worker-threads", c.WorkerThreads, "background worker goroutines (accepted but not read by the server)")
	fs.IntVar(&c.RateLimitPerMinute, "rate-limit-per-minute", c.RateLimitPerMinute, "token bucket capacity per key per minute")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Pebble store directory (empty uses an in-memory store)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "health/metrics listener address")
	fs.StringVar(&c.KeyPath, "key-path", c.KeyPath, "server RSA keypair PEM path (empty generates an ephemeral key)")
}

// envBindings lists, for each field, the MESHD_ environment variable that
// overrides it and a setter applying a parsed value onto c.
func (c *Config) envBindings() map[string]func(string) error {
	return map[string]func(string) error{
		"MESHD_HOST": func(v string) error { c.Host = v; return nil },
		"MESHD_PORT": func(v string) error { return setInt(&c.Port, v) },
		"MESHD_MAX_CONNECTIONS":     func(v string) error { return setInt(&c.MaxConnections, v) },
		"MESHD_CONNECTION_TIMEOUT":  func(v string) error { return setDuration(&c.ConnectionTimeout, v) },
		"MESHD_HEARTBEAT_INTERVAL":  func(v string) error { return setDuration(&c.HeartbeatInterval, v) },
		"MESHD_BUFFER_SIZE":         func(v string) error { return setInt(&c.BufferSize, v) },
		"MESHD_WORKER_THREADS":      func(v string) error { return setInt(&c.WorkerThreads, v) },
		"MESHD_RATE_LIMIT_PER_MINUTE": func(v string) error { return setInt(&c.RateLimitPerMinute, v) },
		"MESHD_LOG_LEVEL":    func(v string) error { c.LogLevel = v; return nil },
		"MESHD_LOG_FORMAT":   func(v string) error { c.LogFormat = v; return nil },
		"MESHD_DATA_DIR":     func(v string) error { c.DataDir = v; return nil },
		"MESHD_METRICS_ADDR": func(v string) error { c.MetricsAddr = v; return nil },
		"MESHD_KEY_PATH":     func(v string) error { c.KeyPath = v; return nil },
	}
}

// ApplyEnv overrides any field whose flag was not explicitly set on fs with
// its MESHD_<FIELD> environment variable, if present.
func (c *Config) ApplyEnv(fs *pflag.FlagSet) error {
	flagByEnv := map[string]string{
		"MESHD_HOST":                  "host",
		"MESHD_PORT":                  "port",
		"MESHD_MAX_CONNECTIONS":       "max-connections",
		"MESHD_CONNECTION_TIMEOUT":    "connection-timeout",
		"MESHD_HEARTBEAT_INTERVAL":    "heartbeat-interval",
		"MESHD_BUFFER_SIZE":           "buffer-size",
		"MESHD_WORKER_THREADS":        "worker-threads",
		"MESHD_RATE_LIMIT_PER_MINUTE": "rate-limit-per-minute",
		"MESHD_LOG_LEVEL":             "log-level",
		"MESHD_LOG_FORMAT":            "log-format",
		"MESHD_DATA_DIR":              "data-dir",
		"MESHD_METRICS_ADDR":          "metrics-addr",
		"MESHD_KEY_PATH":              "key-path",
	}
	for env, setter := range c.envBindings() {
		flagName := flagByEnv[env]
		if fs != nil && fs.Changed(flagName) {
			continue
		}
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		if err := setter(v); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
