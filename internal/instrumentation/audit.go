package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation captures one calendar command tool call for audit logging.
//
// SessionID identifies a phone call. General logs carry only its
// fingerprint (see AnonymizeSession); the raw id is reserved for audit streams.
type ToolInvocation struct {
	Tool string

	// Conversation session the call belongs to
	SessionID string

	ServiceName string // provider service (calendar)
	Operation   string // one of the Operation* constants

	// ResolutionPath records how an update/delete target was found, if any.
	ResolutionPath string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// SessionFingerprint returns the anonymized session id.
func (ti *ToolInvocation) SessionFingerprint() string {
	return AnonymizeSession(ti.SessionID)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes with the session id anonymized.
// For full audit logging, use LogAuditAttrs.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	return ti.attrs(false)
}

// LogAuditAttrs returns slog attributes including the raw session id.
// Route these records to access-controlled storage.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	return ti.attrs(true)
}

func (ti *ToolInvocation) attrs(raw bool) []slog.Attr {
	session := slog.String("session", ti.SessionFingerprint())
	if raw {
		session = slog.String("session_id", ti.SessionID)
	}
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		session,
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	optional := []struct{ key, value string }{
		{"resolution_path", ti.ResolutionPath},
		{"service", ti.ServiceName},
		{"operation", ti.Operation},
		{"trace_id", ti.TraceID},
	}
	if raw {
		optional = append(optional, struct{ key, value string }{"span_id", ti.SpanID})
	}
	optional = append(optional, struct{ key, value string }{"error", ti.Error})
	for _, o := range optional {
		if o.value != "" {
			attrs = append(attrs, slog.String(o.key, o.value))
		}
	}
	return attrs
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithSession sets the conversation session id.
func (ti *ToolInvocation) WithSession(sessionID string) *ToolInvocation {
	ti.SessionID = sessionID
	return ti
}

// WithResolution records how the target event was identified.
func (ti *ToolInvocation) WithResolution(path string) *ToolInvocation {
	ti.ResolutionPath = path
	return ti
}

// WithService sets the provider service and operation.
func (ti *ToolInvocation) WithService(serviceName, operation string) *ToolInvocation {
	ti.ServiceName = serviceName
	ti.Operation = operation
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID, ti.SpanID = spanIDs(ctx)
	return ti
}

// Complete marks the invocation as completed and calculates duration.
// Returns the same ToolInvocation for method chaining.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// AuditLogger writes one record per tool invocation.
type AuditLogger struct {
	logger     *slog.Logger
	level      slog.Level
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger logging at info level.
// PII is not included (anonymized identifiers are used instead).
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, LogLevel: "info"})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config. An
// unrecognized level falls back to info.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return &AuditLogger{
		logger:     logger,
		level:      level,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogToolInvocation logs a tool invocation at the configured level, or at
// warn level or above when it failed. Raw session ids are only included
// when the logger is configured with IncludePII.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if !al.enabled {
		return
	}
	if ti.Success {
		al.logger.LogAttrs(context.Background(), al.level, "tool_executed", ti.attrs(al.includePII)...)
		return
	}
	al.logger.LogAttrs(context.Background(), max(al.level, slog.LevelWarn), "tool_failed", ti.attrs(al.includePII)...)
}
