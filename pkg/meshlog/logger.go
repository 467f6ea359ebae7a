// Package meshlog wires the server's structured logging on top of
// rs/zerolog. It exists only to centralize level parsing and the
// text/json output-format switch so every package threads the same kind
// of logger instance instead of configuring zerolog ad hoc.
package meshlog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Format selects the log output encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat parses a format name, defaulting to FormatText on anything
// unrecognized.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	default:
		return FormatText
	}
}

// ParseLevel parses a level name, defaulting to zerolog.InfoLevel on
// anything unrecognized.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// New builds a zerolog.Logger writing to w (os.Stdout if nil) at level,
// in either human-readable console format (FormatText, the default) or
// aggregation-friendly JSON.
func New(w io.Writer, level zerolog.Level, format Format) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == FormatText {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Discard returns a logger that drops everything, for tests that don't
// care about log output.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}
