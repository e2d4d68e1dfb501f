package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/felixgeelhaar/releasekit/internal/errors"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if got := ParseFormat("JSON"); got != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, want json", got)
	}
	if got := ParseFormat("console"); got != FormatText {
		t.Errorf("ParseFormat(console) = %v, want text", got)
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf, Component: "test"})

	logger.ForStage("run-1", "push").Info("stage started", "version", "1.2.0")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]string{
		"msg":       "stage started",
		"component": "test",
		"run_id":    "run-1",
		"stage":     "push",
		"version":   "1.2.0",
	} {
		if entry[key] != want {
			t.Errorf("entry[%q] = %v, want %q", key, entry[key], want)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Format: FormatText, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestWithErrorCoded(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, Format: FormatJSON, Output: &buf})

	err := fmt.Errorf("stage: %w", errors.Wrap(errors.CodePushError, "push failed", fmt.Errorf("rejected")).
		WithSuggestion("pull first"))
	logger.WithError(err).Error("push failed")

	var entry map[string]any
	if jerr := json.Unmarshal(buf.Bytes(), &entry); jerr != nil {
		t.Fatalf("log line is not JSON: %v", jerr)
	}
	if entry["error_code"] != "PUSH_ERROR" {
		t.Errorf("error_code = %v, want PUSH_ERROR", entry["error_code"])
	}
	if entry["cause"] != "rejected" {
		t.Errorf("cause = %v, want rejected", entry["cause"])
	}
}

func TestWithErrorNil(t *testing.T) {
	logger := Discard()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestDefaultLogger(t *testing.T) {
	custom := Discard()
	SetDefault(custom)
	t.Cleanup(func() { SetDefault(nil) })

	if Default() != custom {
		t.Error("Default() should return the logger set via SetDefault")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	l := Discard()
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return a non-nil logger unchanged")
	}
}
