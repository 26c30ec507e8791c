package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/conversation"
	"github.com/teemow/voicecal/internal/instrumentation"
	"github.com/teemow/voicecal/internal/logging"
	"github.com/teemow/voicecal/internal/server"
	"github.com/teemow/voicecal/internal/tools/common"
)

// Tool names as seen by the voice agent.
const (
	ToolCreateEvent   = "createCalendarEvent"
	ToolQuickAdd      = "quickAddEvent"
	ToolListEvents    = conversation.ListOperation
	ToolUpdateEvent   = "updateCalendarEvent"
	ToolDeleteEvent   = "deleteCalendarEvent"
	ToolCheckFreeBusy = "checkFreeBusy"
	ToolCheckConflict = "checkSchedulingConflict"
)

const (
	defaultListWindow  = 7 * 24 * time.Hour
	defaultListMax     = 10
	maxListResults     = 250
	defaultEventLength = time.Hour
)

// Gateway is the part of the calendar client the tools depend on.
type Gateway interface {
	Initialize(ctx context.Context) (bool, error)
	Location() *time.Location
	CreateEvent(ctx context.Context, input calendar.EventInput) (*calendar.EventSummary, error)
	QuickAdd(ctx context.Context, text string) (*calendar.EventSummary, error)
	ListEvents(ctx context.Context, opts calendar.ListOptions) ([]calendar.EventSummary, error)
	UpdateEvent(ctx context.Context, eventID string, patch calendar.EventPatch) (*calendar.EventSummary, error)
	DeleteEvent(ctx context.Context, eventID string, notify bool) error
	QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time) ([]calendar.TimeRange, error)
	FindEventByTitle(ctx context.Context, title string) (*calendar.EventSummary, error)
}

// Handler executes the calendar command tools against a Gateway and records
// every call in the session's conversation context.
type Handler struct {
	gw     Gateway
	store  conversation.Store
	logger *slog.Logger
	now    func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock replaces time.Now, used for the default listing window.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(gw Gateway, store conversation.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		gw:     gw,
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) location() *time.Location {
	if loc := h.gw.Location(); loc != nil {
		return loc
	}
	return time.UTC
}

// ensureConnected loads the stored credentials. A decryption failure is
// logged on its own but reads as "not connected" to the caller.
func (h *Handler) ensureConnected(ctx context.Context, logger *slog.Logger) bool {
	ok, err := h.gw.Initialize(ctx)
	if err != nil {
		logger.Error("Calendar credentials unavailable", logging.Err(err))
		return false
	}
	return ok
}

// remember appends the outcome of a call to the session history. Store
// failures never fail the tool call.
func (h *Handler) remember(ctx context.Context, logger *slog.Logger, sessionID, tool, content string) {
	if err := h.store.AddConversationItem(ctx, sessionID, tool, content); err != nil {
		logger.Warn("Failed to record conversation item", logging.Err(err))
	}
}

// toolDef binds a tool definition to its handler and instrumentation labels.
type toolDef struct {
	tool      mcp.Tool
	operation string
	handler   common.ToolHandler
}

func (h *Handler) definitions() []toolDef {
	return []toolDef{
		{createEventTool(), instrumentation.OperationCreate, h.CreateEvent},
		{quickAddTool(), instrumentation.OperationQuickAdd, h.QuickAdd},
		{listEventsTool(), instrumentation.OperationList, h.ListEvents},
		{updateEventTool(), instrumentation.OperationUpdate, h.UpdateEvent},
		{deleteEventTool(), instrumentation.OperationDelete, h.DeleteEvent},
		{checkFreeBusyTool(), instrumentation.OperationFreeBusy, h.CheckFreeBusy},
		{checkConflictTool(), instrumentation.OperationFreeBusy, h.CheckSchedulingConflict},
	}
}

// Tools returns the definitions of all calendar command tools.
func Tools() []mcp.Tool {
	defs := (&Handler{}).definitions()
	tools := make([]mcp.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, def.tool)
	}
	return tools
}

// RegisterCalendarTools registers all calendar command tools with the MCP server
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	client := sc.CalendarClient()
	if client == nil {
		return errors.New("calendar client is not configured")
	}
	if sc.Store() == nil {
		return errors.New("conversation store is not configured")
	}

	h := NewHandler(client, sc.Store(), WithLogger(sc.Logger()))
	for _, def := range h.definitions() {
		s.AddTool(def.tool, common.InstrumentedToolHandlerWithService(
			def.tool.Name, instrumentation.ServiceCalendar, def.operation, sc, def.handler))
	}
	sc.Logger().Debug("Registered calendar tools", slog.Int("count", len(h.definitions())))
	return nil
}

// sessionParam is the per-call session argument shared by every tool.
func sessionParam() mcp.ToolOption {
	return mcp.WithString(common.SessionIDArg,
		mcp.Required(),
		mcp.Description("Identifier of the conversation (phone call) this command belongs to"),
	)
}

func timeDescription(what string) string {
	return fmt.Sprintf("%s as an RFC 3339 timestamp with offset (e.g. '2025-01-15T14:00:00-08:00') or a date 'YYYY-MM-DD' for all-day events", what)
}
