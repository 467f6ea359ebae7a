package meshlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevelUnknownDefaultsToInfo(t *testing.T) {
	if lvl := ParseLevel("not-a-level"); lvl != zerolog.InfoLevel {
		t.Fatalf("ParseLevel(garbage) = %v, want InfoLevel", lvl)
	}
	if lvl := ParseLevel("debug"); lvl != zerolog.DebugLevel {
		t.Fatalf("ParseLevel(debug) = %v, want DebugLevel", lvl)
	}
}

func TestParseFormatUnknownDefaultsToText(t *testing.T) {
	if f := ParseFormat("json"); f != FormatJSON {
		t.Fatalf("ParseFormat(json) = %v, want FormatJSON", f)
	}
	if f := ParseFormat("nonsense"); f != FormatText {
		t.Fatalf("ParseFormat(nonsense) = %v, want FormatText", f)
	}
}

func TestNewJSONLoggerEmitsValidJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.InfoLevel, FormatJSON)
	logger.Info().Str("user", "alice").Msg("joined")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["user"] != "alice" || entry["message"] != "joined" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, zerolog.WarnLevel, FormatJSON)
	logger.Info().Msg("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info-level log to be suppressed, got %q", buf.String())
	}
	logger.Warn().Msg("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn-level log to be written")
	}
}
