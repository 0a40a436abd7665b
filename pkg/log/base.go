package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	ctx := context.Background()
	h := l.slogLogger.Handler()
	if !h.Enabled(ctx, toSlogLevel(level)) {
		return
	}
	// skip runtime.Callers, log, and the exported level method
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = h.Handle(ctx, r)
}

// Debug logs at debug level.
func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}

// Info logs at info level.
func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}

// Warn logs at warn level.
func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}

// Error logs at error level.
func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

// Debugf logs a formatted message at debug level.
func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(msg, args...), nil)
}

// Infof logs a formatted message at info level.
func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(msg, args...), nil)
}

// Warnf logs a formatted message at warn level.
func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(msg, args...), nil)
}

// Errorf logs a formatted message at error level.
func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(msg, args...), nil)
}

// With returns a child logger that carries fields on every entry.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := *l
	child.slogLogger = l.slogLogger.With(attrsToAny(attrsFromFieldSlice(fields))...)
	return &child
}

// WithError returns a child logger carrying the error.
func (l *BaseLogger) WithError(err error) Logger {
	return l.With(Err(err))
}

// WithComponent returns a child logger tagged with the component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel sets the minimum level for this logger and all of its children.
func (l *BaseLogger) SetLevel(level Level) { l.level.set(level) }

// GetLevel returns the minimum level.
func (l *BaseLogger) GetLevel() Level { return l.level.get() }
