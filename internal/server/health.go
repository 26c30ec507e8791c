package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/voicecal/internal/credentials"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusDisconnected = "not connected"
)

// CalendarStatus reports whether calendar credentials are loaded.
type CalendarStatus interface {
	Status() credentials.Status
}

// HealthChecker serves the Kubernetes probe endpoints of the streamable
// HTTP transport.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time

	// Optional; nil skips the corresponding check.
	calendar CalendarStatus
	sessions *SessionIDManager
}

// NewHealthChecker returns a checker that starts out ready. sc may be nil.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, startTime: time.Now()}
	h.ready.Store(true)
	return h
}

// SetCalendarStatus adds the calendar credential state to readiness. A
// disconnected calendar is reported but keeps the server ready: tools
// still answer callers with a spoken explanation.
func (h *HealthChecker) SetCalendarStatus(c CalendarStatus) {
	h.calendar = c
}

// SetSessionManager adds the transport session count to the detailed view.
func (h *HealthChecker) SetSessionManager(m *SessionIDManager) {
	h.sessions = m
}

// SetReady flips readiness, typically to false when draining on shutdown.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status            string     `json:"status"`
	Uptime            string     `json:"uptime"`
	CalendarConnected bool       `json:"calendarConnected"`
	CalendarExpiry    *time.Time `json:"calendarTokenExpiry,omitempty"`
	ActiveSessions    *int       `json:"activeSessions,omitempty"`
}

// RegisterHealthEndpoints mounts the probe handlers on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

// LivenessHandler answers ok for as long as the process can serve HTTP.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler fails while the server is draining or shut down.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.readinessChecks()
		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if !ok {
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

// readinessChecks evaluates each probe input. ok is false when any check
// that gates traffic fails.
func (h *HealthChecker) readinessChecks() (checks map[string]string, ok bool) {
	checks = map[string]string{
		"ready":    healthStatusOK,
		"shutdown": healthStatusOK,
	}
	ok = true
	if !h.IsReady() {
		checks["ready"] = healthStatusNotReady
		ok = false
	}
	if h.shuttingDown() {
		checks["shutdown"] = healthStatusShuttingDown
		ok = false
	}
	if h.calendar != nil {
		checks["calendar"] = healthStatusOK
		if !h.calendar.Status().Connected {
			checks["calendar"] = healthStatusDisconnected
		}
	}
	return checks, ok
}

// DetailedHealthHandler adds uptime, credential expiry and session counts.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if h.calendar != nil {
			st := h.calendar.Status()
			resp.CalendarConnected = st.Connected
			if st.Connected && !st.Expiry.IsZero() {
				resp.CalendarExpiry = &st.Expiry
			}
		}
		if h.sessions != nil {
			n := h.sessions.ActiveSessions()
			resp.ActiveSessions = &n
		}

		code := http.StatusOK
		switch {
		case !h.IsReady():
			resp.Status, code = healthStatusNotReady, http.StatusServiceUnavailable
		case h.shuttingDown():
			resp.Status, code = healthStatusShuttingDown, http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
