package server

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/conversation"
	"github.com/teemow/voicecal/internal/instrumentation"
)

// ServerContext holds the dependencies shared by all tool handlers
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	calendar    *calendar.Client
	store       conversation.Store
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	mu          sync.RWMutex
	shutdown    bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithCalendarClient sets the calendar gateway.
func WithCalendarClient(c *calendar.Client) Option {
	return func(sc *ServerContext) { sc.calendar = c }
}

// WithStore sets the conversation store. The server context takes ownership
// and releases it on Shutdown. Without it an in-memory store with default
// limits is used.
func WithStore(s conversation.Store) Option {
	return func(sc *ServerContext) { sc.store = s }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = l }
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}

	if sc.store == nil {
		sc.store = conversation.NewMemoryStore(
			conversation.WithObserver(sc.metrics),
			conversation.WithLogger(sc.logger),
		)
	}

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// CalendarClient returns the calendar gateway, or nil when none is configured.
func (sc *ServerContext) CalendarClient() *calendar.Client {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.calendar
}

// Store returns the conversation store.
func (sc *ServerContext) Store() conversation.Store {
	return sc.store
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil when audit logging is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context and releases the store.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()

	switch s := sc.store.(type) {
	case *conversation.MemoryStore:
		s.Stop()
	case io.Closer:
		return s.Close()
	}
	return nil
}
