package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs an in-memory tracer provider for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestSpanAttributeBuilder(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("deleteCalendarEvent").
		WithSession("call-1").
		WithService(ServiceCalendar).
		WithOperation(OperationDelete).
		WithCalendar("primary").
		WithEvent("evt123").
		WithResolution(ResolutionContext).
		Build()

	if len(attrs) != 7 {
		t.Fatalf("expected 7 attributes, got %d", len(attrs))
	}

	got := make(map[string]any)
	for _, attr := range attrs {
		got[string(attr.Key)] = attr.Value.AsInterface()
	}

	want := map[string]any{
		SpanAttrTool:       "deleteCalendarEvent",
		SpanAttrSession:    AnonymizeSession("call-1"),
		SpanAttrService:    ServiceCalendar,
		SpanAttrOperation:  OperationDelete,
		SpanAttrCalendarID: "primary",
		SpanAttrEventID:    "evt123",
		SpanAttrResolution: ResolutionContext,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestSpanAttributeBuilder_EmptyValues(t *testing.T) {
	attrs := NewSpanAttributeBuilder().
		WithTool("test_tool").
		WithSession("").
		WithCalendar("").
		WithEvent("").
		WithResolution("").
		Build()

	if len(attrs) != 1 {
		t.Errorf("expected 1 attribute (only tool), got %d", len(attrs))
	}
}

func TestStartToolSpan(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartToolSpan(context.Background(), "listCalendarEvents")
	SetSpanSuccess(span)
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != "tool.listCalendarEvents" {
		t.Errorf("span name = %q", ended[0].Name())
	}
	if ended[0].SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v", ended[0].SpanKind())
	}
	if ended[0].Status().Code != codes.Ok {
		t.Errorf("status = %v", ended[0].Status().Code)
	}
}

func TestStartGoogleAPISpan(t *testing.T) {
	sr := recordSpans(t)

	attrs := NewSpanAttributeBuilder().WithCalendar("primary").WithEvent("evt-1").Build()
	ctx, span := StartGoogleAPISpan(context.Background(), ServiceCalendar, OperationUpdate, attrs...)
	traceID, spanID := spanIDs(ctx)
	if traceID == "" || spanID == "" {
		t.Error("expected a valid span context")
	}
	AddSpanEvent(span, "retry", attribute.Int(SpanAttrAttempt, 2))
	SetSpanError(span, errors.New("quota exceeded"))
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := ended[0]
	if got.Name() != "calendar.update" {
		t.Errorf("span name = %q", got.Name())
	}
	if got.SpanKind() != trace.SpanKindClient {
		t.Errorf("span kind = %v", got.SpanKind())
	}
	if got.Status().Code != codes.Error {
		t.Errorf("status = %v", got.Status().Code)
	}
	if len(got.Attributes()) != 4 {
		t.Errorf("expected service, operation, calendar and event attributes, got %v", got.Attributes())
	}
	if len(got.Events()) != 2 {
		t.Errorf("expected the retry and exception events, got %d", len(got.Events()))
	}
}

func TestSetSpanError_Nil(t *testing.T) {
	sr := recordSpans(t)

	_, span := StartToolSpan(context.Background(), "checkFreeBusy")
	SetSpanError(span, nil)
	span.End()

	ended := sr.Ended()
	if ended[0].Status().Code != codes.Unset {
		t.Errorf("nil error should leave status unset, got %v", ended[0].Status().Code)
	}
	if len(ended[0].Events()) != 0 {
		t.Errorf("expected no events, got %d", len(ended[0].Events()))
	}
}

func TestSpanIDs_NoSpan(t *testing.T) {
	traceID, spanID := spanIDs(context.Background())
	if traceID != "" || spanID != "" {
		t.Error("expected empty ids without a span")
	}
}
