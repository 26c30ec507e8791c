package calendar_tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/voicecal/internal/calendar"
	"github.com/teemow/voicecal/internal/conversation"
)

const (
	voiceDateTimeLayout = "Monday, January 2, 2006 at 3:04 PM"
	voiceDateLayout     = "Monday, January 2, 2006"
)

// Spoken failure texts.
const (
	msgNotConnected   = "Google Calendar is not connected. Please ask the user to connect their calendar through the admin interface."
	msgMissingSession = "The request did not say which conversation it belongs to."
	msgNoTarget       = "Please specify either an event ID or a search query to find the event."
	msgQuickAddFailed = "I couldn't create the event. Please try rephrasing your request."
	msgEmptyQuickAdd  = "Please tell me what to add to your calendar."
)

// providerFailure is spoken when the calendar provider call fails. The
// underlying error is only logged.
func providerFailure(activity string) string {
	return fmt.Sprintf("I encountered an error while %s. Please try again.", activity)
}

func notFound(phrase string) string {
	return fmt.Sprintf("I couldn't find an event matching \"%s\"", phrase)
}

// formatForVoice renders an instant the way it is read out on the call.
func formatForVoice(t time.Time, allDay bool, loc *time.Location) string {
	if allDay {
		return t.In(loc).Format(voiceDateLayout)
	}
	return t.In(loc).Format(voiceDateTimeLayout)
}

type errorResponse struct {
	Error string `json:"error"`
}

// response is a successful tool result. Message is what gets spoken.
type response interface {
	spoken() string
}

type baseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (b baseResponse) spoken() string { return b.Message }

func ok(message string) baseResponse {
	return baseResponse{Success: true, Message: message}
}

type eventResponse struct {
	baseResponse
	EventID string `json:"eventId"`
	Link    string `json:"link,omitempty"`
}

type deleteResponse struct {
	baseResponse
	EventID string `json:"eventId"`
}

type listedEvent struct {
	ID        string `json:"id"`
	Summary   string `json:"summary"`
	Start     string `json:"start"`
	Location  string `json:"location,omitempty"`
	Attendees string `json:"attendees,omitempty"`
}

// listResponse is the result of a listing. It carries the listed events in
// the form the conversation context remembers them.
type listResponse struct {
	baseResponse
	Events []listedEvent `json:"events"`
	Count  int           `json:"count"`

	refs []conversation.EventRef
}

// ContextEvents implements conversation.EventLister.
func (r listResponse) ContextEvents() []conversation.EventRef {
	return r.refs
}

func newListResponse(events []calendar.EventSummary, loc *time.Location) listResponse {
	resp := listResponse{
		baseResponse: ok("You have no events scheduled for that time period."),
		Events:       make([]listedEvent, 0, len(events)),
		Count:        len(events),
		refs:         make([]conversation.EventRef, 0, len(events)),
	}
	if len(events) == 0 {
		return resp
	}

	spoken := make([]string, 0, len(events))
	for _, ev := range events {
		start := formatForVoice(ev.Start, ev.AllDay, loc)
		attendees := ev.AttendeeSummary()
		resp.Events = append(resp.Events, listedEvent{
			ID:        ev.ID,
			Summary:   ev.Summary,
			Start:     start,
			Location:  ev.Location,
			Attendees: attendees,
		})
		resp.refs = append(resp.refs, conversation.EventRef{
			ID:        ev.ID,
			Title:     ev.Summary,
			Start:     ev.Start,
			AllDay:    ev.AllDay,
			Location:  ev.Location,
			Attendees: attendees,
		})

		line := fmt.Sprintf("%s on %s", ev.Summary, start)
		if ev.Location != "" {
			line += " at " + ev.Location
		}
		spoken = append(spoken, line)
	}
	resp.Message = fmt.Sprintf("You have %d event(s): %s", len(events), strings.Join(spoken, ", "))
	return resp
}

// timeSpan is a time range with its spoken form.
type timeSpan struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description"`
}

func newTimeSpans(ranges []calendar.TimeRange, label string, loc *time.Location) []timeSpan {
	spans := make([]timeSpan, 0, len(ranges))
	for _, r := range ranges {
		spans = append(spans, timeSpan{
			Start:       r.Start,
			End:         r.End,
			Description: fmt.Sprintf("%s from %s to %s", label, formatForVoice(r.Start, false, loc), formatForVoice(r.End, false, loc)),
		})
	}
	return spans
}

type freeBusyResponse struct {
	baseResponse
	IsAvailable  bool       `json:"isAvailable"`
	HasConflicts bool       `json:"hasConflicts"`
	BusyTimes    []timeSpan `json:"busyTimes"`
	FreeTimes    []timeSpan `json:"freeTimes"`
}

type conflictResponse struct {
	baseResponse
	HasConflict bool       `json:"hasConflict"`
	Conflicts   []timeSpan `json:"conflicts"`
}

func textResult(resp response) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult builds an error result carrying {"error": msg}.
func errorResult(msg string) *mcp.CallToolResult {
	data, _ := json.Marshal(errorResponse{Error: msg})
	return mcp.NewToolResultError(string(data))
}
