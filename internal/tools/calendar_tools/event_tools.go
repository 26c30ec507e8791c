package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/conversation"
	"github.com/teemow/voicecal/internal/credentials"
	"github.com/teemow/voicecal/internal/instrumentation"
	"github.com/teemow/voicecal/internal/logging"
	"github.com/teemow/voicecal/internal/tools/common"
)

// call is the per-invocation state shared by the tool implementations.
type call struct {
	sessionID string
	logger    *slog.Logger
}

// toolFunc executes one tool. Returned errors are spoken back to the caller,
// so implementations convert provider errors before returning them.
type toolFunc func(ctx context.Context, c call, args map[string]any) (response, error)

func spoken(msg string) error {
	return &toolError{msg: msg}
}

// run decodes the session, executes fn and turns its outcome into a tool
// result. Every outcome is appended to the session history.
func (h *Handler) run(ctx context.Context, request mcp.CallToolRequest, tool string, fn toolFunc) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, err := common.SessionIDFromArgs(ctx, args)
	if err != nil {
		h.logger.Warn("Tool call without session", logging.Tool(tool))
		return errorResult(msgMissingSession), nil
	}
	c := call{
		sessionID: sessionID,
		logger:    logging.WithSession(logging.WithTool(h.logger, tool), sessionID),
	}

	resp, err := fn(ctx, c, args)
	if err != nil {
		var te *toolError
		msg := err.Error()
		if !errors.As(err, &te) {
			c.logger.Error("Tool failed", logging.Err(err))
			msg = "Something went wrong. Please try again."
		}
		h.remember(ctx, c.logger, sessionID, tool, msg)
		return errorResult(msg), nil
	}

	result, err := textResult(resp)
	if err != nil {
		c.logger.Error("Tool failed", logging.Err(err))
		msg := "Something went wrong. Please try again."
		h.remember(ctx, c.logger, sessionID, tool, msg)
		return errorResult(msg), nil
	}
	h.remember(ctx, c.logger, sessionID, tool, resp.spoken())
	return result, nil
}

// providerError logs a failed gateway call and returns the spoken failure.
// Rejected credentials read as "not connected".
func (h *Handler) providerError(c call, err error, msg string) error {
	var te *toolError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, credentials.ErrNotConnected) {
		c.logger.Warn("Calendar credentials rejected", logging.Err(err))
		return spoken(msgNotConnected)
	}
	c.logger.Error("Calendar provider call failed", logging.Err(err))
	return spoken(msg)
}

func (h *Handler) connect(ctx context.Context, c call) error {
	if !h.ensureConnected(ctx, c.logger) {
		return spoken(msgNotConnected)
	}
	return nil
}

// target is the event an update or delete applies to.
type target struct {
	id     string
	title  string
	phrase string

	// event is set when the target came from a provider title search.
	event *calendar.EventSummary
}

// describe names the target in a not-found answer.
func (t target) describe() string {
	if t.phrase != "" {
		return t.phrase
	}
	return t.id
}

// resolveTarget finds the event for an update or delete: an explicit id
// first, then the conversation context when the phrase refers back to it,
// then a title search at the provider. It never guesses past that.
func (h *Handler) resolveTarget(ctx context.Context, c call, eventID, phrase string) (target, error) {
	if id := strings.TrimSpace(eventID); id != "" {
		common.RecordResolution(ctx, instrumentation.ResolutionExplicitID)
		return target{id: id}, nil
	}
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return target{}, spoken(msgNoTarget)
	}

	if conversation.HasReferenceCue(phrase) {
		ref, err := h.store.FindEventByReference(ctx, c.sessionID, phrase)
		switch {
		case err != nil:
			c.logger.Warn("Conversation context lookup failed", logging.Err(err))
		case ref != nil:
			common.RecordResolution(ctx, instrumentation.ResolutionContext)
			c.logger.Debug("Resolved event from conversation context", logging.EventID(ref.ID))
			return target{id: ref.ID, title: ref.Title, phrase: phrase}, nil
		}
	}

	ev, err := h.gw.FindEventByTitle(ctx, phrase)
	if err != nil {
		if errors.Is(err, calendar.ErrNotFound) {
			common.RecordResolution(ctx, instrumentation.ResolutionUnresolved)
			return target{}, spoken(notFound(phrase))
		}
		return target{}, err
	}
	common.RecordResolution(ctx, instrumentation.ResolutionTitleSearch)
	c.logger.Debug("Resolved event by title search", logging.EventID(ev.ID))
	return target{id: ev.ID, title: ev.Summary, phrase: phrase, event: ev}, nil
}

// CreateEvent handles createCalendarEvent.
func (h *Handler) CreateEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolCreateEvent, h.createEvent)
}

func (h *Handler) createEvent(ctx context.Context, c call, args map[string]any) (response, error) {
	var req createRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	loc := h.location()
	input, err := req.toInput(loc)
	if err != nil {
		return nil, err
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	ev, err := h.gw.CreateEvent(ctx, input)
	if err != nil {
		return nil, h.providerError(c, err, providerFailure("creating the event"))
	}
	c.logger.Info("Created event", logging.EventID(ev.ID), logging.Attendees(input.Attendees))

	title, start, allDay := ev.Summary, ev.Start, ev.AllDay
	if title == "" {
		title = input.Summary
	}
	if start.IsZero() {
		start, allDay = input.Start, input.AllDay
	}
	return eventResponse{
		baseResponse: ok(fmt.Sprintf("I've created \"%s\" on %s", title, formatForVoice(start, allDay, loc))),
		EventID:      ev.ID,
		Link:         ev.HTMLLink,
	}, nil
}

// QuickAdd handles quickAddEvent.
func (h *Handler) QuickAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolQuickAdd, h.quickAdd)
}

func (h *Handler) quickAdd(ctx context.Context, c call, args map[string]any) (response, error) {
	var req quickAddRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, spoken(msgEmptyQuickAdd)
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	ev, err := h.gw.QuickAdd(ctx, text)
	if err != nil {
		return nil, h.providerError(c, err, msgQuickAddFailed)
	}
	c.logger.Info("Quick-added event", logging.EventID(ev.ID))

	title := ev.Summary
	if title == "" {
		title = text
	}
	return eventResponse{
		baseResponse: ok(fmt.Sprintf("I've added \"%s\" to your calendar", title)),
		EventID:      ev.ID,
		Link:         ev.HTMLLink,
	}, nil
}

// ListEvents handles listCalendarEvents. The listed events become the
// session's reference list for later "that event" phrases.
func (h *Handler) ListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolListEvents, h.listEvents)
}

func (h *Handler) listEvents(ctx context.Context, c call, args map[string]any) (response, error) {
	var req listRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	loc := h.location()
	opts, err := req.toOptions(h.now(), loc)
	if err != nil {
		return nil, err
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	events, err := h.gw.ListEvents(ctx, opts)
	if err != nil {
		return nil, h.providerError(c, err, providerFailure("checking your calendar"))
	}

	resp := newListResponse(events, loc)
	params := listParams{
		TimeMin:     opts.TimeMin,
		TimeMax:     opts.TimeMax,
		SearchQuery: opts.Query,
		MaxResults:  opts.MaxResults,
	}
	if err := h.store.UpdateLastQuery(ctx, c.sessionID, ToolListEvents, params, resp); err != nil {
		c.logger.Warn("Failed to record last query", logging.Err(err))
	}
	c.logger.Debug("Listed events", slog.Int("count", resp.Count))
	return resp, nil
}

// UpdateEvent handles updateCalendarEvent.
func (h *Handler) UpdateEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolUpdateEvent, h.updateEvent)
}

func (h *Handler) updateEvent(ctx context.Context, c call, args map[string]any) (response, error) {
	var req updateRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.EventID) == "" && strings.TrimSpace(req.SearchQuery) == "" {
		return nil, spoken(msgNoTarget)
	}
	patch, err := req.Updates.toPatch(h.location())
	if err != nil {
		return nil, err
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	const failed = "updating the event"
	t, err := h.resolveTarget(ctx, c, req.EventID, req.SearchQuery)
	if err != nil {
		return nil, h.providerError(c, err, providerFailure(failed))
	}
	completePatch(&patch, t.event)

	updated, err := h.gw.UpdateEvent(ctx, t.id, patch)
	if err != nil {
		if calendar.IsNotFound(err) {
			return nil, spoken(notFound(t.describe()))
		}
		return nil, h.providerError(c, err, providerFailure(failed))
	}
	c.logger.Info("Updated event", logging.EventID(updated.ID))

	title := updated.Summary
	if title == "" {
		title = t.title
	}
	id := updated.ID
	if id == "" {
		id = t.id
	}
	return eventResponse{
		baseResponse: ok(fmt.Sprintf("I've updated the event \"%s\"", title)),
		EventID:      id,
		Link:         updated.HTMLLink,
	}, nil
}

// DeleteEvent handles deleteCalendarEvent.
func (h *Handler) DeleteEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run(ctx, request, ToolDeleteEvent, h.deleteEvent)
}

func (h *Handler) deleteEvent(ctx context.Context, c call, args map[string]any) (response, error) {
	var req deleteRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.EventID) == "" && strings.TrimSpace(req.SearchQuery) == "" {
		return nil, spoken(msgNoTarget)
	}
	if err := h.connect(ctx, c); err != nil {
		return nil, err
	}

	const failed = "deleting the event"
	t, err := h.resolveTarget(ctx, c, req.EventID, req.SearchQuery)
	if err != nil {
		return nil, h.providerError(c, err, providerFailure(failed))
	}

	if err := h.gw.DeleteEvent(ctx, t.id, req.notify()); err != nil {
		if calendar.IsNotFound(err) {
			return nil, spoken(notFound(t.describe()))
		}
		return nil, h.providerError(c, err, providerFailure(failed))
	}

	msg := "I've deleted the event from your calendar."
	if t.title != "" {
		msg = fmt.Sprintf("I've deleted the event \"%s\" from your calendar.", t.title)
	}
	return deleteResponse{baseResponse: ok(msg), EventID: t.id}, nil
}

func createEventTool() mcp.Tool {
	return mcp.NewTool(ToolCreateEvent,
		mcp.WithDescription("Create a new event in the user's Google Calendar with specified details"),
		sessionParam(),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("The title or summary of the event"),
		),
		mcp.WithString("startDateTime",
			mcp.Required(),
			mcp.Description(timeDescription("Start of the event")),
		),
		mcp.WithString("endDateTime",
			mcp.Description(timeDescription("End of the event (defaults to one hour after the start, or the same day for all-day events)")),
		),
		mcp.WithBoolean("allDay",
			mcp.Description("Whether this is an all-day event"),
		),
		mcp.WithString("description",
			mcp.Description("Event description or notes"),
		),
		mcp.WithString("location",
			mcp.Description("Physical or virtual location"),
		),
		mcp.WithString("attendees",
			mcp.Description("Comma-separated list of attendee email addresses"),
		),
		mcp.WithString("recurrence",
			mcp.Description("Recurrence rule in RRULE form (e.g. 'FREQ=WEEKLY;BYDAY=MO,WE')"),
		),
		mcp.WithArray("reminders",
			mcp.Description("Reminder overrides (defaults to a popup 10 minutes before)"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"method": map[string]any{
						"type": "string",
						"enum": []string{"popup", "email"},
					},
					"minutes": map[string]any{
						"type":    "number",
						"minimum": 0,
						"maximum": maxReminderMinutes,
					},
				},
				"required": []string{"method", "minutes"},
			}),
		),
	)
}

func quickAddTool() mcp.Tool {
	return mcp.NewTool(ToolQuickAdd,
		mcp.WithDescription("Quickly add an event using natural language (e.g., 'Lunch with John tomorrow at noon')"),
		sessionParam(),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Natural language description of the event"),
		),
	)
}

func listEventsTool() mcp.Tool {
	return mcp.NewTool(ToolListEvents,
		mcp.WithDescription("List events from the user's calendar within a time range"),
		sessionParam(),
		mcp.WithString("timeMin",
			mcp.Description(timeDescription("Start of the range (defaults to now)")),
		),
		mcp.WithString("timeMax",
			mcp.Description(timeDescription("End of the range (defaults to seven days after the start; a date covers that whole day)")),
		),
		mcp.WithString("searchQuery",
			mcp.Description("Text to search for in events"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return (default 10)"),
			mcp.Min(1),
			mcp.Max(maxListResults),
		),
	)
}

func updateEventTool() mcp.Tool {
	return mcp.NewTool(ToolUpdateEvent,
		mcp.WithDescription("Update an existing calendar event by ID or by searching for it"),
		sessionParam(),
		mcp.WithString("eventId",
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("searchQuery",
			mcp.Description("Phrase identifying the event when no ID is known (e.g. 'the dentist appointment' or 'that meeting')"),
		),
		mcp.WithObject("updates",
			mcp.Description("Fields to update"),
			mcp.Properties(map[string]any{
				"summary":       map[string]any{"type": "string", "description": "New event title"},
				"startDateTime": map[string]any{"type": "string", "description": timeDescription("New start")},
				"endDateTime":   map[string]any{"type": "string", "description": timeDescription("New end")},
				"location":      map[string]any{"type": "string", "description": "New location"},
				"description":   map[string]any{"type": "string", "description": "New description"},
			}),
		),
	)
}

func deleteEventTool() mcp.Tool {
	return mcp.NewTool(ToolDeleteEvent,
		mcp.WithDescription("Delete a calendar event by ID or by searching for it"),
		sessionParam(),
		mcp.WithString("eventId",
			mcp.Description("The ID of the event to delete"),
		),
		mcp.WithString("searchQuery",
			mcp.Description("Phrase identifying the event when no ID is known (e.g. 'that cooking class')"),
		),
		mcp.WithBoolean("sendNotifications",
			mcp.Description("Whether to notify attendees (default true)"),
			mcp.DefaultBool(true),
		),
	)
}
