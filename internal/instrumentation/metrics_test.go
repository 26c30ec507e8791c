package instrumentation

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

// sumInt64 returns the total of all data points of the named int64 sum.
func sumInt64(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/mcp", 200, 100*time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "/mcp", 500, 50*time.Millisecond)

	if got := sumInt64(t, reader, "http_requests_total"); got != 2 {
		t.Errorf("http_requests_total = %d, want 2", got)
	}
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationList, StatusSuccess, 200*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationCreate, StatusError, 500*time.Millisecond)
	m.RecordAPIRetry(ctx, OperationList)

	if got := sumInt64(t, reader, "calendar_api_operations_total"); got != 2 {
		t.Errorf("calendar_api_operations_total = %d, want 2", got)
	}
	if got := sumInt64(t, reader, "calendar_api_retries_total"); got != 1 {
		t.Errorf("calendar_api_retries_total = %d, want 1", got)
	}
}

func TestMetrics_RecordOAuthTokenRefresh(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)

	if got := sumInt64(t, reader, "oauth_token_refresh_total"); got != 2 {
		t.Errorf("oauth_token_refresh_total = %d, want 2", got)
	}
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	for _, detailed := range []bool{false, true} {
		m, reader := newTestMetrics(t, detailed)
		ctx := context.Background()

		m.RecordToolInvocation(ctx, "listCalendarEvents", StatusSuccess, 100*time.Millisecond)
		m.RecordToolInvocationWithSession(ctx, "checkFreeBusy", StatusError, "call-1", 10*time.Millisecond)

		if got := sumInt64(t, reader, "mcp_tool_invocations_total"); got != 2 {
			t.Errorf("detailed=%v: mcp_tool_invocations_total = %d, want 2", detailed, got)
		}
	}
}

func TestMetrics_RecordReferenceResolution(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	for _, path := range []string{ResolutionExplicitID, ResolutionContext, ResolutionTitleSearch, ResolutionUnresolved} {
		m.RecordReferenceResolution(ctx, path)
	}

	if got := sumInt64(t, reader, "reference_resolutions_total"); got != 4 {
		t.Errorf("reference_resolutions_total = %d, want 4", got)
	}
}

func TestMetrics_ActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.IncrementActiveSessions(ctx)
	m.IncrementActiveSessions(ctx)
	m.IncrementActiveSessions(ctx)
	m.DecrementActiveSessions(ctx, EvictionIdle)

	if got := sumInt64(t, reader, "conversation_active_sessions"); got != 2 {
		t.Errorf("conversation_active_sessions = %d, want 2", got)
	}
	if got := sumInt64(t, reader, "conversation_session_evictions_total"); got != 1 {
		t.Errorf("conversation_session_evictions_total = %d, want 1", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/mcp", 200, time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationList, StatusSuccess, time.Millisecond)
	m.RecordAPIRetry(ctx, OperationList)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	m.RecordToolInvocation(ctx, "test_tool", StatusSuccess, time.Millisecond)
	m.RecordReferenceResolution(ctx, ResolutionContext)
	m.IncrementActiveSessions(ctx)
	m.DecrementActiveSessions(ctx, EvictionCleared)
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	metrics.RecordGoogleAPIOperation(ctx, ServiceCalendar, OperationList, StatusSuccess, 200*time.Millisecond)
	metrics.RecordToolInvocation(ctx, "test_tool", StatusSuccess, 100*time.Millisecond)
	metrics.IncrementActiveSessions(ctx)
	metrics.DecrementActiveSessions(ctx, EvictionIdle)
}
