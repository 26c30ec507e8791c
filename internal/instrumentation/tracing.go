package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer used for all voicecal spans.
const TracerName = "github.com/teemow/voicecal"

// Span attribute keys.
const (
	SpanAttrTool       = "mcp.tool"
	SpanAttrStatus     = "mcp.status"
	SpanAttrSession    = "conversation.session"
	SpanAttrResolution = "conversation.resolution_path"
	SpanAttrService    = "calendar.service"
	SpanAttrOperation  = "calendar.operation"
	SpanAttrCalendarID = "calendar.id"
	SpanAttrEventID    = "calendar.event_id"
	SpanAttrAttempt    = "calendar.attempt"
)

// SpanAttributeBuilder collects span attributes. Empty optional values are
// skipped so spans only carry what is known.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 8)}
}

func (b *SpanAttributeBuilder) add(key, value string) *SpanAttributeBuilder {
	if value != "" {
		b.attrs = append(b.attrs, attribute.String(key, value))
	}
	return b
}

func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	return b.add(SpanAttrTool, tool)
}

// WithSession adds the anonymized session fingerprint. Raw ids never go on spans.
func (b *SpanAttributeBuilder) WithSession(sessionID string) *SpanAttributeBuilder {
	if sessionID == "" {
		return b
	}
	return b.add(SpanAttrSession, AnonymizeSession(sessionID))
}

func (b *SpanAttributeBuilder) WithService(service string) *SpanAttributeBuilder {
	return b.add(SpanAttrService, service)
}

func (b *SpanAttributeBuilder) WithOperation(operation string) *SpanAttributeBuilder {
	return b.add(SpanAttrOperation, operation)
}

func (b *SpanAttributeBuilder) WithCalendar(calendarID string) *SpanAttributeBuilder {
	return b.add(SpanAttrCalendarID, calendarID)
}

func (b *SpanAttributeBuilder) WithEvent(eventID string) *SpanAttributeBuilder {
	return b.add(SpanAttrEventID, eventID)
}

func (b *SpanAttributeBuilder) WithResolution(path string) *SpanAttributeBuilder {
	return b.add(SpanAttrResolution, path)
}

func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(kind),
	)
}

// StartToolSpan starts the server span of one MCP tool invocation, named
// "tool.<name>". The caller ends it.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return startSpan(ctx, "tool."+toolName, trace.SpanKindServer, all)
}

// StartGoogleAPISpan starts the client span of one provider call, named
// "<service>.<operation>".
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	}, attrs...)
	return startSpan(ctx, service+"."+operation, trace.SpanKindClient, all)
}

// SetSpanError records err on the span. A nil error leaves the span untouched.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// spanIDs returns the trace and span id of the span in ctx, or empty
// strings when there is none.
func spanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
