// Package log provides the structured logging facade used across pubsub.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by log/slog via
// a bridge handler that routes records through a Formatter and one or more
// Outputs, so every component shares the same rendering.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("shelf"))
//	l.Info("order admitted", log.Str("order_id", id), log.Str("tier", "hot"))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level, text or json
// format, console/null output). Loggers are constructed once and passed to
// each component explicitly; there is no package-level default logger.
//
// # Interop
//
// RedirectStdLog routes the standard library logger (used by some third-party
// packages such as Pebble and gRPC) through a Logger.
package log
