// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the voicecal MCP server.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// Conversation contexts:
//   - conversation_active_sessions: live session contexts
//   - conversation_session_evictions_total: releases by reason (idle, capacity, cleared)
//   - reference_resolutions_total: update/delete targets by resolution path
//
// Calendar provider:
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds
//   - calendar_api_retries_total: retried transient read failures
//   - oauth_token_refresh_total: credential refreshes by result
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for tool invocations (tool.<name>) and provider calls
// (calendar.<operation>). Session ids only appear on spans as fingerprints.
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
// TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG,
// OTEL_SERVICE_NAME and the AUDIT_LOGGING_* variables.
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar,
//		instrumentation.OperationList, instrumentation.StatusSuccess, time.Since(start))
package instrumentation
