package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testSession    = "call-7f3a"
	testTraceID    = "abc123def456"
	testToolList   = "listCalendarEvents"
	testToolCreate = "createCalendarEvent"
	testToolDelete = "deleteCalendarEvent"
)

func attrMap(attrs []slog.Attr) map[string]slog.Attr {
	m := make(map[string]slog.Attr, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a
	}
	return m
}

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testToolList)

	if ti.Tool != testToolList {
		t.Errorf("Tool = %q, want %q", ti.Tool, testToolList)
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteSuccess()

	if !ti.Success {
		t.Error("Success should be true")
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ti.Error != "" {
		t.Errorf("Error should be empty, got %q", ti.Error)
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q", ti.Status())
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testToolCreate).CompleteWithError(errors.New("permission denied"))

	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "permission denied" {
		t.Errorf("Error = %q, want %q", ti.Error, "permission denied")
	}
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q", ti.Status())
	}
}

func TestToolInvocation_Builders(t *testing.T) {
	ti := NewToolInvocation(testToolDelete).
		WithSession(testSession).
		WithService(ServiceCalendar, OperationDelete).
		WithResolution(ResolutionContext)

	if ti.SessionID != testSession {
		t.Errorf("SessionID = %q", ti.SessionID)
	}
	if ti.ServiceName != ServiceCalendar || ti.Operation != OperationDelete {
		t.Errorf("service/operation = %q/%q", ti.ServiceName, ti.Operation)
	}
	if ti.ResolutionPath != ResolutionContext {
		t.Errorf("ResolutionPath = %q", ti.ResolutionPath)
	}
}

func TestToolInvocation_LogAttrs_AnonymizesSession(t *testing.T) {
	ti := NewToolInvocation(testToolList).
		WithSession(testSession).
		WithService(ServiceCalendar, OperationList).
		CompleteSuccess()
	ti.TraceID = testTraceID

	m := attrMap(ti.LogAttrs())

	if got := m["session"].Value.String(); got != AnonymizeSession(testSession) {
		t.Errorf("session = %q, want fingerprint", got)
	}
	if _, ok := m["session_id"]; ok {
		t.Error("raw session id must not be present")
	}
	if m["service"].Value.String() != ServiceCalendar {
		t.Errorf("service = %q", m["service"].Value.String())
	}
	if m["trace_id"].Value.String() != testTraceID {
		t.Errorf("trace_id = %q", m["trace_id"].Value.String())
	}
	if _, ok := m["error"]; ok {
		t.Error("error should be absent on success")
	}
}

func TestToolInvocation_LogAuditAttrs(t *testing.T) {
	ti := NewToolInvocation(testToolDelete).
		WithSession(testSession).
		WithResolution(ResolutionTitleSearch).
		CompleteWithError(errors.New("not found"))

	m := attrMap(ti.LogAuditAttrs())

	if m["session_id"].Value.String() != testSession {
		t.Errorf("session_id = %q", m["session_id"].Value.String())
	}
	if m["resolution_path"].Value.String() != ResolutionTitleSearch {
		t.Errorf("resolution_path = %q", m["resolution_path"].Value.String())
	}
	if m["error"].Value.String() != "not found" {
		t.Errorf("error = %q", m["error"].Value.String())
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	tests := []struct {
		name       string
		includePII bool
		success    bool
		wantMsg    string
		wantRaw    bool
	}{
		{"success anonymized", false, true, "tool_executed", false},
		{"failure anonymized", false, false, "tool_failed", false},
		{"success with PII", true, true, "tool_executed", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{
				Enabled:    true,
				IncludePII: tt.includePII,
			})

			ti := NewToolInvocation(testToolList).WithSession(testSession)
			if tt.success {
				ti.CompleteSuccess()
			} else {
				ti.CompleteWithError(errors.New("boom"))
			}
			al.LogToolInvocation(ti)

			out := buf.String()
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("output %q missing %q", out, tt.wantMsg)
			}
			if got := strings.Contains(out, testSession); got != tt.wantRaw {
				t.Errorf("raw session present = %v, want %v", got, tt.wantRaw)
			}
		})
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false, IncludePII: true})

	al.LogToolInvocation(NewToolInvocation(testToolList).CompleteSuccess())
	al.LogToolInvocation(NewToolInvocation(testToolCreate).WithSession(testSession).CompleteWithError(errors.New("boom")))

	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}
}

func TestNewAuditLogger_NilLogger(t *testing.T) {
	al := NewAuditLogger(nil)
	if al.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if al.includePII {
		t.Error("includePII should default to false")
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation("test").WithSpanContext(context.Background())

	if ti.TraceID != "" || ti.SpanID != "" {
		t.Errorf("expected empty trace context, got %q/%q", ti.TraceID, ti.SpanID)
	}
}

func TestAuditLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, LogLevel: "debug"})

	al.LogToolInvocation(NewToolInvocation(testToolList).CompleteSuccess())
	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Errorf("expected a debug record, got %q", buf.String())
	}

	buf.Reset()
	al.LogToolInvocation(NewToolInvocation(testToolList).CompleteWithError(errors.New("boom")))
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("failures are logged at warn level at least, got %q", buf.String())
	}

	al = NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, LogLevel: "loud"})
	if al.level != slog.LevelInfo {
		t.Errorf("unknown level should fall back to info, got %v", al.level)
	}
}
