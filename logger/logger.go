// Package logger provides the leveled logger used by the sdk-core packages.
// The default logger writes to the standard library log output; consumers can
// swap in their own implementation with SetLogger.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Level controls which messages a logger emits.
type Level int

const (
	// LevelNone disables all output
	LevelNone Level = iota
	// LevelError emits only errors
	LevelError
	// LevelWarn emits warnings and errors
	LevelWarn
	// LevelInfo emits informational messages, warnings and errors
	LevelInfo
	// LevelDebug emits everything, including request/token lifecycle details
	LevelDebug
)

// Logger is the interface used by sdk-core for diagnostic output.
type Logger interface {
	Error(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Info(format string, args ...interface{})
	Debug(format string, args ...interface{})

	SetLogLevel(level Level)
	GetLogLevel() Level
	IsDebugEnabled() bool
}

// SDKLogger is the default Logger implementation, writing prefixed lines
// through a standard library log.Logger.
type SDKLogger struct {
	mu     sync.Mutex
	level  Level
	target *log.Logger
}

// New constructs an SDKLogger with the given level. A nil target defaults to
// stderr.
func New(level Level, target *log.Logger) *SDKLogger {
	if target == nil {
		target = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &SDKLogger{level: level, target: target}
}

func (l *SDKLogger) logf(level Level, prefix, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level {
		return
	}
	l.target.Printf("[%s] %s", prefix, fmt.Sprintf(format, args...))
}

// Error logs an error-level message.
func (l *SDKLogger) Error(format string, args ...interface{}) {
	l.logf(LevelError, "Error", format, args...)
}

// Warn logs a warning-level message.
func (l *SDKLogger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, "Warn", format, args...)
}

// Info logs an info-level message.
func (l *SDKLogger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, "Info", format, args...)
}

// Debug logs a debug-level message.
func (l *SDKLogger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, "Debug", format, args...)
}

// SetLogLevel changes the level at runtime.
func (l *SDKLogger) SetLogLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLogLevel returns the current level.
func (l *SDKLogger) GetLogLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// IsDebugEnabled reports whether debug output is active.
func (l *SDKLogger) IsDebugEnabled() bool {
	return l.GetLogLevel() >= LevelDebug
}

var (
	defaultLogger Logger = New(LevelError, nil)
	defaultMu     sync.RWMutex
)

// SetLogger replaces the package logger used by sdk-core.
func SetLogger(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// GetLogger returns the package logger.
func GetLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLogLevel adjusts the level of the package logger.
func SetLogLevel(level Level) {
	GetLogger().SetLogLevel(level)
}
