package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	sterrors "github.com/FocuswithJustin/stephanus/core/errors"
)

// captureLogOutput redirects the logger to a buffer for the duration of f.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f()
	defaultLogger = oldLogger
	return buf.String()
}

func decode(t *testing.T, output string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &m); err != nil {
		t.Fatalf("output is not one JSON record: %q (%v)", output, err)
	}
	return m
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Warn level JSON format", LevelWarn, FormatJSON},
		{"Error level Text format", LevelError, FormatText},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if slog.Default() != defaultLogger {
				t.Error("InitLogger() did not install the default slog logger")
			}
		})
	}
	InitLogger(LevelInfo, FormatText)
}

func TestInitLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelWarn, FormatJSON)
	defer InitLogger(LevelInfo, FormatText)

	Info("dropped")
	Warn("kept", "key", "value")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("Info message written at warn level")
	}
	m := decode(t, out)
	if m["msg"] != "kept" || m["key"] != "value" {
		t.Errorf("record = %v", m)
	}
	if _, err := time.Parse(time.RFC3339, m["time"].(string)); err != nil {
		t.Errorf("time = %v, want RFC3339", m["time"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); !errors.Is(err, sterrors.ErrInvalidInput) {
		t.Errorf("ParseLevel(loud) error = %v, want ErrInvalidInput", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat("text"); err != nil || f != FormatText {
		t.Errorf("ParseFormat(text) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) error = nil")
	}
}

func TestRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "abc-123")
	if got := GetRunID(ctx); got != "abc-123" {
		t.Errorf("GetRunID() = %q, want %q", got, "abc-123")
	}
	if got := GetRunID(context.Background()); got != "" {
		t.Errorf("GetRunID(empty) = %q, want empty", got)
	}

	out := captureLogOutput(func() {
		InfoContext(ctx, "hello")
	})
	if m := decode(t, out); m["run_id"] != "abc-123" {
		t.Errorf("run_id = %v, want abc-123", m["run_id"])
	}
}

func TestDocument(t *testing.T) {
	out := captureLogOutput(func() {
		Document(context.Background(), "greatscott02.xml", "annotate", "wrapped", 3)
	})
	m := decode(t, out)
	if m["msg"] != "document" || m["document"] != "greatscott02.xml" || m["pass"] != "annotate" || m["wrapped"] != float64(3) {
		t.Errorf("record = %v", m)
	}
}

func TestDocumentError(t *testing.T) {
	out := captureLogOutput(func() {
		DocumentError(context.Background(), "greatscott02.xml", "verify", sterrors.ErrTextChanged)
	})
	m := decode(t, out)
	if m["level"] != "ERROR" || m["operation"] != "verify" || m["error"] != sterrors.ErrTextChanged.Error() {
		t.Errorf("record = %v", m)
	}
}

func TestDiagnosticIsDebug(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerTo(&buf, LevelInfo, FormatJSON)
	defer InitLogger(LevelInfo, FormatText)

	Diagnostic(context.Background(), "a.xml", "rejected", "/r/author[1]")
	if buf.Len() != 0 {
		t.Errorf("debug diagnostic written at info level: %q", buf.String())
	}
}

func TestRunSummary(t *testing.T) {
	out := captureLogOutput(func() {
		RunSummary(context.Background(), "idem", 10, 1, 1500*time.Millisecond)
	})
	m := decode(t, out)
	if m["documents"] != float64(10) || m["failed"] != float64(1) || m["duration_ms"] != float64(1500) {
		t.Errorf("record = %v", m)
	}
}
