package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func noColor() *bool {
	b := false
	return &b
}

func TestConsoleLoggerFormatsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "console", Output: &buf, Color: noColor()})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.With("run_id", "abc").WithGroup("item").Info("cover uploaded", "id", "hello world", "bytes", 42)

	line := buf.String()
	for _, want := range []string{"INFO cover uploaded", "run_id=abc", `item.id="hello world"`, "item.bytes=42"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Errorf("unexpected colour codes in %q", line)
	}
}

func TestConsoleLoggerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf, Color: noColor()})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "WARN shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Output: &buf, Color: noColor()})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("with caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("expected caller information, got %q", buf.String())
	}
}

func TestConsoleLoggerColor(t *testing.T) {
	var buf bytes.Buffer
	on := true
	logger, err := New(Options{Output: &buf, Color: &on})
	if err != nil {
		t.Fatal(err)
	}
	logger.Error("boom")
	if !strings.Contains(buf.String(), ansiRed+"ERROR"+ansiReset) {
		t.Fatalf("expected coloured level, got %q", buf.String())
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("batch finished", "failed", 0)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "batch finished" || rec["level"] != "info" {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Errorf("missing ts in %v", rec)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSourceOfResolvesProgramCounter(t *testing.T) {
	if _, _, ok := sourceOf(0); ok {
		t.Fatal("expected no source for a zero pc")
	}
	var pcs [1]uintptr
	runtime.Callers(1, pcs[:])
	file, line, ok := sourceOf(pcs[0])
	if !ok || filepath.Base(file) != "logger_test.go" || line == 0 {
		t.Fatalf("sourceOf = %q:%d (%v)", file, line, ok)
	}
}
