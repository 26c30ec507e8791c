package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/voicecal/internal/instrumentation"
	"github.com/teemow/voicecal/internal/server"
)

// ToolHandler is the signature of an MCP tool handler. It is an alias so
// handlers can be passed straight to server.MCPServer.AddTool.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

type invocationKey struct{}

// RecordResolution notes on the current invocation how the target event of
// an update or delete was found. It is a no-op outside an instrumented
// handler.
func RecordResolution(ctx context.Context, path string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(instrumentation.SpanAttrResolution, path))
	if ti, ok := ctx.Value(invocationKey{}).(*instrumentation.ToolInvocation); ok {
		ti.WithResolution(path)
	}
}

// InstrumentedToolHandler wraps handler so every call is traced, counted
// and audited through the instrumentation held by sc.
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return InstrumentedToolHandlerWithService(toolName, "", "", sc, handler)
}

// InstrumentedToolHandlerWithService additionally tags the span and audit
// record with the provider service and one of the instrumentation
// Operation* values.
//
//	s.AddTool(tool, common.InstrumentedToolHandlerWithService(
//		"deleteCalendarEvent", instrumentation.ServiceCalendar, instrumentation.OperationDelete, sc, handler))
func InstrumentedToolHandlerWithService(toolName, serviceName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics, audit := sc.Metrics(), sc.AuditLogger()
		if metrics == nil && audit == nil {
			return handler(ctx, request)
		}

		sessionID, _ := SessionIDFromArgs(ctx, request.GetArguments())
		attrs := instrumentation.NewSpanAttributeBuilder().WithSession(sessionID)
		ti := instrumentation.NewToolInvocation(toolName).WithSession(sessionID)
		if serviceName != "" {
			attrs = attrs.WithService(serviceName).WithOperation(operation)
			ti.WithService(serviceName, operation)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, attrs.Build()...)
		defer span.End()
		ti.WithSpanContext(ctx)

		start := time.Now()
		result, err := handler(context.WithValue(ctx, invocationKey{}, ti), request)
		elapsed := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			ti.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			// The span stays unset: the caller got a spoken answer.
			status = instrumentation.StatusError
			ti.Complete(false, nil)
		default:
			ti.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}
		span.SetAttributes(attribute.String(instrumentation.SpanAttrStatus, status))

		if metrics != nil {
			metrics.RecordToolInvocationWithSession(ctx, toolName, status, sessionID, elapsed)
			if ti.ResolutionPath != "" {
				metrics.RecordReferenceResolution(ctx, ti.ResolutionPath)
			}
		}
		if audit != nil {
			audit.LogToolInvocation(ti)
		}
		return result, err
	}
}
