package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config declares how a process-wide logger is built.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text|json
	Output string `json:"output" yaml:"output"` // console|null
	// Redact replaces the value of the listed keys with [REDACTED].
	Redact []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	// SampleInitial/SampleThereafter keep the first N entries per message and
	// then one in every M. Disabled when SampleThereafter is 0.
	SampleInitial    int `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThereafter int `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// ParseLevel parses debug|info|warn|error (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	var out Output
	switch strings.ToLower(cfg.Output) {
	case "", "console", "stderr":
		out = NewConsoleOutput()
	case "null", "none":
		out = NullOutput{}
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	base := NewLogger(WithLevel(lvl), WithFormatter(formatter), WithOutput(out)).(*BaseLogger)
	if len(cfg.Redact) > 0 || cfg.SampleThereafter > 0 {
		h := newBridgeHandler(base).withRedactions(cfg.Redact).withSampler(cfg.SampleInitial, cfg.SampleThereafter)
		base.slogLogger = slog.New(h)
	}
	return base, nil
}
