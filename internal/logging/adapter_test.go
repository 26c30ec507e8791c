package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewSlogAdapter_WithNil(t *testing.T) {
	adapter := NewSlogAdapter(nil)
	if adapter.Logger() == nil {
		t.Error("adapter logger should default to slog.Default()")
	}
}

func TestSlogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(New(&buf, true))

	adapter.Debug("debug message", "k", "v1")
	adapter.Info("info message", "k", "v2")
	adapter.Warn("warn message", "k", "v3")
	adapter.Error("error message", "k", "v4")

	out := buf.String()
	for _, want := range []string{"level=DEBUG", "level=INFO", "level=WARN", "level=ERROR", "k=v4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil))).With(KeySession, "abc")
	adapter.Info("hello")
	if !strings.Contains(buf.String(), "session_id=abc") {
		t.Errorf("expected session attribute, got %q", buf.String())
	}
}

func TestSlogAdapter_ImplementsLogger(t *testing.T) {
	var _ Logger = NewSlogAdapter(nil)
}
