package logger

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Log flags
const (
	LstdFlags     = log.LstdFlags
	Lmicroseconds = log.Lmicroseconds
)

// Logger wraps the standard log.Logger with leveled helpers
type Logger struct {
	*log.Logger
	debug atomic.Bool
}

// New creates a new logger
func New() *Logger {
	return &Logger{
		Logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// NewWriter creates a new logger that writes to the provided writer
func NewWriter(w io.Writer) *Logger {
	return &Logger{
		Logger: log.New(w, "", log.LstdFlags),
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWriter(io.Discard)
}

// SetOutput sets the output destination for the logger
func (l *Logger) SetOutput(w io.Writer) {
	l.Logger.SetOutput(w)
}

// SetFlags sets the output flags for the logger
func (l *Logger) SetFlags(flag int) {
	l.Logger.SetFlags(flag)
}

// SetDebug toggles debug output
func (l *Logger) SetDebug(on bool) {
	l.debug.Store(on)
}

// Infof logs an informational line
func (l *Logger) Infof(format string, v ...any) {
	l.Printf("[INFO] "+format, v...)
}

// Warnf logs a recoverable problem
func (l *Logger) Warnf(format string, v ...any) {
	l.Printf("[WARN] "+format, v...)
}

// Errorf logs a failure
func (l *Logger) Errorf(format string, v ...any) {
	l.Printf("[ERROR] "+format, v...)
}

// Debugf logs only when debug output is enabled
func (l *Logger) Debugf(format string, v ...any) {
	if l.debug.Load() {
		l.Printf("[DEBUG] "+format, v...)
	}
}
