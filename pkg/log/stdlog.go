package log

import (
	stdlog "log"
	"strings"
)

type stdWriter struct {
	logger Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	w.logger.Info(msg, Str("source", "stdlog"))
	return len(p), nil
}

// ToStdLogger adapts logger to a *log.Logger from the standard library.
func ToStdLogger(logger Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{logger: logger}, "", 0)
}

// RedirectStdLog routes the standard library's default logger through logger.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{logger: logger})
}
