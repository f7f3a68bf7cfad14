package qf

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// LogifaceLogger adapts a logiface.Logger (backed by stumpy's JSON encoder)
// to the Logger interface, for applications that already standardize on
// logiface for their own logging and want the framework's structured
// entries folded into the same stream.
type LogifaceLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger builds a LogifaceLogger writing JSON lines to out at
// minimum severity level.
func NewLogifaceLogger(level LogLevel, out io.Writer) *LogifaceLogger {
	return &LogifaceLogger{
		l: logiface.New[*stumpy.Event](
			logiface.WithLevel[*stumpy.Event](logLevelToLogiface(level)),
			stumpy.WithStumpy(stumpy.WithWriter(out)),
		),
	}
}

func logLevelToLogiface(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

// IsEnabled reports whether level would be logged.
func (a *LogifaceLogger) IsEnabled(level LogLevel) bool {
	b := a.l.Build(logLevelToLogiface(level))
	enabled := b.Enabled()
	b.Release()
	return enabled
}

// Log writes entry through the wrapped logiface.Logger, mapping the fixed
// LogEntry shape onto logiface's builder API field-by-field.
func (a *LogifaceLogger) Log(entry LogEntry) {
	var b *logiface.Builder[*stumpy.Event]
	switch entry.Level {
	case LevelDebug:
		b = a.l.Debug()
	case LevelWarn:
		b = a.l.Warning()
	case LevelError:
		b = a.l.Err()
	default:
		b = a.l.Info()
	}

	b = b.Str("category", entry.Category)
	if entry.AOID != 0 {
		b = b.Int("ao", int(entry.AOID))
	}
	if entry.PoolID != 0 {
		b = b.Int("pool", int(entry.PoolID))
	}
	if entry.TimerID != 0 {
		b = b.Uint64("timer", entry.TimerID)
	}
	for k, v := range entry.Context {
		b = b.Interface(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}
