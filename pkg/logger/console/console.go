// Package console provides a stderr logging backend built on
// charmbracelet/log.
package console

import (
	"os"

	"github.com/charmbracelet/log"
)

// ConsoleLogger is a LoggerInstance that renders to stderr with
// timestamps.
type ConsoleLogger struct {
	backend *log.Logger
}

// ConsoleLoggerParams configures a ConsoleLogger. Debug lowers the
// minimum level from INFO to DEBUG.
type ConsoleLoggerParams struct {
	Debug bool
}

// NewConsoleLogger creates the console backend.
func NewConsoleLogger(params ConsoleLoggerParams) *ConsoleLogger {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	return &ConsoleLogger{
		backend: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Level:           level,
		}),
	}
}

// Log writes a message at the default level.
func (l *ConsoleLogger) Log(message string, keyvals ...any) {
	l.backend.Print(message, keyvals...)
}

// Debug writes a message at DEBUG level.
func (l *ConsoleLogger) Debug(message string, keyvals ...any) {
	l.backend.Debug(message, keyvals...)
}

// Info writes a message at INFO level.
func (l *ConsoleLogger) Info(message string, keyvals ...any) {
	l.backend.Info(message, keyvals...)
}

// Warn writes a message at WARN level.
func (l *ConsoleLogger) Warn(message string, keyvals ...any) {
	l.backend.Warn(message, keyvals...)
}

// Error writes a message at ERROR level.
func (l *ConsoleLogger) Error(message string, keyvals ...any) {
	l.backend.Error(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func (l *ConsoleLogger) Fatal(message string, keyvals ...any) {
	l.backend.Fatal(message, keyvals...)
}
