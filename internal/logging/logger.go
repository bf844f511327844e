package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	mu           sync.RWMutex
	base         *zap.SugaredLogger
	debugEnabled = os.Getenv("DEBUG") == "true"
)

func init() {
	if err := Init(debugEnabled); err != nil {
		base = zap.NewNop().Sugar()
	}
}

// Init replaces the process logger. Debug mode uses zap's development
// encoder; otherwise JSON production output is used.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.DisableStacktrace = true
		l, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	mu.Lock()
	base = l.Sugar()
	debugEnabled = debug
	mu.Unlock()
	return nil
}

// SetLogger installs an existing logger (tests use zap.NewNop or zaptest)
func SetLogger(l *zap.Logger) {
	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
}

// For returns the logger for a subsystem
func For(subsystem string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(subsystem)
}

// With returns a subsystem logger carrying structured fields
func With(subsystem string, kv ...any) *zap.SugaredLogger {
	return For(subsystem).With(kv...)
}

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	For(subsystem).Infof(format, args...)
}

// Debug logs a debug message (only shown if DEBUG=true)
func Debug(subsystem, format string, args ...any) {
	if debugEnabled {
		For(subsystem).Debugf(format, args...)
	}
}

// Warn logs a recoverable problem
func Warn(subsystem, format string, args ...any) {
	For(subsystem).Warnf(format, args...)
}

// Error logs a failure
func Error(subsystem, format string, args ...any) {
	For(subsystem).Errorf(format, args...)
}

// Sync flushes buffered entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// Truncate cuts a string to maxLen runes and adds ellipsis
func Truncate(s string, maxLen int) string {
	// Replace newlines with spaces for one-line logs
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
