// logging.go - Structured Logging Interface for the qf Framework
//
// Package-level configuration for structured logging.
// This design allows external integration with logging frameworks (zerolog,
// logrus, logiface, ...) while providing a low-overhead built-in
// implementation for basic usage.
//
// Usage:
//   // Enable structured logging at package initialization
//   qf.SetLogger(qf.NewDefaultLogger(qf.LevelInfo))
//
// Design Decision: Package-level global variable is appropriate here because:
//   - Logging is an infrastructure cross-cutting concern
//   - All active objects in a process share logging semantics
//   - Zero-allocation configuration at startup
//   - Avoids per-instance logging configuration surface area bloat

package qf

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
)

var (
	// globalLogger is the process-wide structured logger.
	globalLogger struct {
		sync.RWMutex
		logger Logger
	}

	// recoverableLimiter rate-limits log lines for conditions that are
	// recoverable-at-API (§7) and can legitimately repeat at dispatch rate,
	// e.g. a queue that keeps rejecting posts with a margin violation.
	// Until New replaces it, two windows apply: at most one line per 100ms
	// and at most 20 per 5s for each category.
	recoverableLimiter = catrate.NewLimiter(map[time.Duration]int{
		100 * time.Millisecond: 1,
		5 * time.Second:        20,
	})
)

// newCatrateLimiter builds a single-window rate limiter. New uses it to
// install the configured window/burst (100ms/1 unless WithRecoverableLogRate
// overrides them) in place of the package default above.
func newCatrateLimiter(window time.Duration, burst int) *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{window: burst})
}

// SetLogger sets the global structured logger used by framework internals.
func SetLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getGlobalLogger safely retrieves the global logger.
func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug for detailed dispatch/scheduling tracing.
	LevelDebug LogLevel = iota
	// LevelInfo for general informational messages (AO start, pool init).
	LevelInfo
	// LevelWarn for recoverable conditions (post rejected by margin).
	LevelWarn
	// LevelError for conditions that precede a fatal assertion.
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Level     LogLevel
	Category  string // "dispatch", "queue", "pool", "timer", "sched", "trace"
	AOID      uint8  // priority of the active object involved, 0 if n/a
	PoolID    uint8
	TimerID   uint64
	Context   map[string]interface{}
	Message   string
	Err       error
	Timestamp time.Time
}

// Logger is the structured logging interface.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// DefaultLogger implements Logger, writing to an *os.File.
type DefaultLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	Out   *os.File // public for test injection
}

// NewDefaultLogger creates a logger with the specified minimum level,
// writing to stdout.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	l := &DefaultLogger{Out: os.Stdout}
	l.level.Store(int32(level))
	return l
}

// NewFileLogger creates a logger writing to the specified file.
func NewFileLogger(level LogLevel, filename string) (*DefaultLogger, error) {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, WrapError("qf: open log file", err)
	}
	l := &DefaultLogger{Out: file}
	l.level.Store(int32(level))
	return l, nil
}

// SetLevel dynamically changes the minimum log level.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// IsEnabled checks if the specified level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log writes a structured log entry.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if isTerminal(l.Out) {
		l.logPretty(entry)
	} else {
		l.logJSON(entry)
	}
}

func (l *DefaultLogger) logPretty(entry LogEntry) {
	colorReset := "\033[0m"
	colorError := "\033[31m"
	colorWarn := "\033[33m"
	colorInfo := "\033[36m"
	colorDebug := "\033[90m"
	colorDim := "\033[2m"

	var color string
	switch entry.Level {
	case LevelDebug:
		color = colorDebug
	case LevelInfo:
		color = colorInfo
	case LevelWarn:
		color = colorWarn
	case LevelError:
		color = colorError
	}

	fmt.Fprintf(l.Out, "%s%s%s %s [%-9s] %s%s",
		color, entry.Level.String(), colorReset,
		entry.Timestamp.Format("15:04:05.000"),
		entry.Category,
		entry.Message,
		colorReset,
	)

	if len(entry.Context) > 0 || entry.AOID != 0 || entry.PoolID != 0 || entry.TimerID != 0 {
		fmt.Fprint(l.Out, colorDim)
		if entry.AOID != 0 {
			fmt.Fprintf(l.Out, " ao=%d", entry.AOID)
		}
		if entry.PoolID != 0 {
			fmt.Fprintf(l.Out, " pool=%d", entry.PoolID)
		}
		if entry.TimerID != 0 {
			fmt.Fprintf(l.Out, " timer=%d", entry.TimerID)
		}
		for k, v := range entry.Context {
			fmt.Fprintf(l.Out, " %s=%v", k, v)
		}
		fmt.Fprint(l.Out, colorReset)
	}

	if entry.Err != nil {
		fmt.Fprintf(l.Out, " %s%v%s\n", colorError, entry.Err, colorReset)
	} else {
		fmt.Fprintln(l.Out)
	}
}

func (l *DefaultLogger) logJSON(entry LogEntry) {
	fmt.Fprintf(l.Out, "{\"timestamp\":\"%s\",\"level\":\"%s\",\"category\":\"%s\"",
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Level,
		entry.Category,
	)
	if entry.AOID != 0 {
		fmt.Fprintf(l.Out, ",\"ao\":%d", entry.AOID)
	}
	if entry.PoolID != 0 {
		fmt.Fprintf(l.Out, ",\"pool\":%d", entry.PoolID)
	}
	if entry.TimerID != 0 {
		fmt.Fprintf(l.Out, ",\"timer\":%d", entry.TimerID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.Out, ",\"%s\":%v", k, v)
	}
	fmt.Fprintf(l.Out, ",\"message\":%q", entry.Message)
	if entry.Err != nil {
		fmt.Fprintf(l.Out, ",\"error\":%q}\n", entry.Err.Error())
	} else {
		fmt.Fprintln(l.Out, "}")
	}
}

// isTerminal checks if writer is a terminal.
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// NoOpLogger discards every entry.
type NoOpLogger struct{}

// NewNoOpLogger returns a Logger that discards every entry.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Log(entry LogEntry)          {}
func (l *NoOpLogger) IsEnabled(level LogLevel) bool { return false }

// WriterLogger implements Logger using any io.Writer (handy for tests).
type WriterLogger struct {
	level atomic.Int32
	mu    sync.Mutex
	out   io.Writer
}

// NewWriterLogger creates a logger writing plain text to out.
func NewWriterLogger(level LogLevel, out io.Writer) *WriterLogger {
	l := &WriterLogger{out: out}
	l.level.Store(int32(level))
	return l
}

// SetLevel dynamically changes the minimum log level.
func (l *WriterLogger) SetLevel(level LogLevel) { l.level.Store(int32(level)) }

// IsEnabled checks if the specified level would be logged.
func (l *WriterLogger) IsEnabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

// Log writes a structured log entry as plain text.
func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.out, "[%s] [%s] [%-9s] %s",
		entry.Level.String(),
		entry.Timestamp.Format("15:04:05.000"),
		entry.Category,
		entry.Message,
	)
	if entry.AOID != 0 {
		fmt.Fprintf(l.out, " ao=%d", entry.AOID)
	}
	if entry.PoolID != 0 {
		fmt.Fprintf(l.out, " pool=%d", entry.PoolID)
	}
	if entry.TimerID != 0 {
		fmt.Fprintf(l.out, " timer=%d", entry.TimerID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.out, " err=%v\n", entry.Err)
	} else {
		fmt.Fprintln(l.out)
	}
}

// logDebug logs a dispatch-tracing message using the global logger.
func logDebug(category, message string, fields map[string]interface{}) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelDebug) {
		return
	}
	logger.Log(LogEntry{Level: LevelDebug, Category: category, Message: message, Context: fields})
}

// logRecoverable logs a recoverable-at-API condition (§7), rate-limited per
// category so a hot retry loop can't flood the sink.
func logRecoverable(category string, aoID uint8, message string, err error, fields map[string]interface{}) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelWarn) {
		return
	}
	if _, ok := recoverableLimiter.Allow(fmt.Sprintf("%s:%d", category, aoID)); !ok {
		return
	}
	logger.Log(LogEntry{Level: LevelWarn, Category: category, AOID: aoID, Message: message, Err: err, Context: fields})
}

// logFatal logs the condition about to be handed to OnAssert.
func logFatal(category, message string, err error) {
	logger := getGlobalLogger()
	if !logger.IsEnabled(LevelError) {
		return
	}
	logger.Log(LogEntry{Level: LevelError, Category: category, Message: message, Err: err})
}
