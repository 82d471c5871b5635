package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{TraceLevel, "TRACE"},
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(999), "UNKNOWN"},
	}

	for _, test := range tests {
		if result := test.level.String(); result != test.expected {
			t.Errorf("Level.String() = %v, expected %v", result, test.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":   TraceLevel,
		"DEBUG":   DebugLevel,
		" info ":  InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyFieldsAreSorted(t *testing.T) {
	l := New(Config{Level: InfoLevel, Component: "test"})
	entry := LogEntry{
		Time:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:     "INFO",
		Message:   "packed",
		Component: "test",
		Fields:    map[string]interface{}{"zeta": 1, "alpha": "a", "mid": true},
	}

	result := l.formatPretty(entry)

	for _, part := range []string{"2025-01-01 12:00:00", "[INFO]", "test:", "packed", "{alpha=a, mid=true, zeta=1}"} {
		if !strings.Contains(result, part) {
			t.Errorf("formatPretty() result missing %q\nResult: %s", part, result)
		}
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, JSON: true, Component: "test", Output: &buf})

	l.Info("bundle unpacked", String("bundle", "dfd_1"), Duration("took", 1500*time.Millisecond))

	var parsed LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\nOutput: %s", err, buf.String())
	}
	if parsed.Message != "bundle unpacked" || parsed.Level != "INFO" {
		t.Errorf("unexpected entry %+v", parsed)
	}
	if parsed.Fields["took"] != "1.5s" {
		t.Errorf("took = %v, want 1.5s", parsed.Fields["took"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: WarnLevel, Output: &buf})

	l.Info("info message")
	l.Debug("debug message")
	l.Warn("warn message")
	l.Error("error message")

	output := buf.String()
	if strings.Contains(output, "info message") || strings.Contains(output, "debug message") {
		t.Errorf("lower levels should be filtered out: %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("higher levels should appear: %s", output)
	}
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: InfoLevel, Output: &buf})
	child := parent.With(String("bundle", "dfd_abc"))

	child.Info("diagnosed", Int("findings", 3))
	parent.Info("parent line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "{bundle=dfd_abc, findings=3}") {
		t.Errorf("child line missing fields: %s", lines[0])
	}
	if strings.Contains(lines[1], "bundle=") {
		t.Errorf("parent must not inherit child fields: %s", lines[1])
	}
}

func TestNilLoggerIsNoOp(t *testing.T) {
	var l *Logger
	l.With(String("k", "v")).Info("nothing happens")
	l.Error("still nothing")
}

func TestDryRunMarker(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: InfoLevel, DryRun: true, Output: &buf})
	l.Info("planned")
	if !strings.Contains(buf.String(), "[DIAGNOSE]") {
		t.Errorf("expected diagnose marker: %s", buf.String())
	}
}

func TestColorToggle(t *testing.T) {
	var plain, colored bytes.Buffer
	New(Config{Level: InfoLevel, Output: &plain}).Warn("careful")
	New(Config{Level: InfoLevel, UseColor: true, DryRun: true, Output: &colored}).Warn("careful")

	if strings.Contains(plain.String(), "\x1b[") {
		t.Errorf("unexpected escape codes: %q", plain.String())
	}
	if !strings.Contains(colored.String(), "\x1b[33mWARN\x1b[0m") {
		t.Errorf("expected yellow level: %q", colored.String())
	}
	if !strings.Contains(colored.String(), "\x1b[35m[DIAGNOSE]\x1b[0m") {
		t.Errorf("expected magenta marker: %q", colored.String())
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
}

func TestFieldConstructors(t *testing.T) {
	if f := String("key", "value"); f.Key != "key" || f.Value != "value" {
		t.Errorf("String() = %+v", f)
	}
	if f := Int("count", 42); f.Key != "count" || f.Value != 42 {
		t.Errorf("Int() = %+v", f)
	}
	if f := Bool("enabled", true); f.Key != "enabled" || f.Value != true {
		t.Errorf("Bool() = %+v", f)
	}
	if f := Any("kinds", []string{"audio"}); f.Key != "kinds" {
		t.Errorf("Any() = %+v", f)
	}
}

func TestErrField(t *testing.T) {
	if f := Err(errors.New("test error")); f.Key != "error" || f.Value != "test error" {
		t.Errorf("Err() = %+v", f)
	}
	if f := Err(nil); f.Value != "<nil>" {
		t.Errorf("Err(nil) = %+v", f)
	}
}

func TestConvenienceFunctionsUseDefault(t *testing.T) {
	original := defaultLogger
	defer func() { defaultLogger = original }()

	if err := Initialize(Config{Level: InfoLevel, Component: "test"}); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if Default() == nil {
		t.Fatal("Initialize() did not set the default logger")
	}

	var buf bytes.Buffer
	SetOutput(&buf)

	Info("test info message")
	Debug("filtered debug")
	Trace("filtered trace")
	Warn("test warn message")
	Error("test error message")

	output := buf.String()
	for _, want := range []string{"test info message", "test warn message", "test error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in %s", want, output)
		}
	}
	if strings.Contains(output, "filtered") {
		t.Errorf("debug/trace should be filtered: %s", output)
	}
}

func TestFallbackLogging(t *testing.T) {
	original := defaultLogger
	defaultLogger = nil
	defer func() { defaultLogger = original }()

	Info("fallback test message")
}
