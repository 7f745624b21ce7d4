// Package log provides JSON-lines structured logging for the bikeshare
// binaries.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output: os.Stderr,
		Level:  slog.LevelInfo,
	}
}

// New creates a JSON-lines logger. Records look like:
//
//	{"ts":"2026-03-02T10:30:00Z","level":"INFO","msg":"pipeline run finished","run_id":"…","outcome":"released"}
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "ts"
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(output, opts))
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else
// is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StartupInfo holds information to log at daemon startup.
type StartupInfo struct {
	Version      string
	ConfigPath   string
	DatabasePath string
	SocketPath   string
	MetricsAddr  string
	LockMode     string
	PID          int
}

// LogStartup logs daemon startup information.
func LogStartup(logger *slog.Logger, info StartupInfo) {
	logger.Info("daemon started",
		"version", info.Version,
		"config_path", info.ConfigPath,
		"database_path", info.DatabasePath,
		"socket_path", info.SocketPath,
		"metrics_addr", info.MetricsAddr,
		"lock_mode", info.LockMode,
		"pid", info.PID,
	)
}

// LogShutdown logs daemon shutdown.
func LogShutdown(logger *slog.Logger, reason string) {
	logger.Info("daemon shutting down", "reason", reason)
}

// LogLockTimeout logs a run that gave up waiting for the global lock.
func LogLockTimeout(logger *slog.Logger, operation string, waited time.Duration) {
	logger.Error("lock acquisition timed out",
		"operation", operation,
		"waited_ms", waited.Milliseconds(),
	)
}

// LogCommitFallback logs a batch write that fell back to per-row writes.
func LogCommitFallback(logger *slog.Logger, table string, rows int, err error) {
	logger.Warn("batch write failed; falling back to per-row writes",
		"table", table,
		"rows", rows,
		"error", err,
	)
}

// LogSettingsReload logs a settings reload.
func LogSettingsReload(logger *slog.Logger, force bool, sections int, missing []string) {
	logger.Info("settings reloaded",
		"force", force,
		"sections", sections,
		"missing", missing,
	)
}
