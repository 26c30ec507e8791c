package calendar_tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/teemow/voicecal/internal/calendar"
)

const dateOnlyLayout = "2006-01-02"

// maxReminderMinutes is the provider limit of four weeks.
const maxReminderMinutes = 40320

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+\.[a-zA-Z0-9_-]+`)

// toolError is a failure whose text is spoken back to the caller as is.
type toolError struct {
	msg string
}

func (e *toolError) Error() string { return e.msg }

func invalidInput(format string, args ...any) error {
	return &toolError{msg: fmt.Sprintf(format, args...)}
}

// decodeArgs maps the raw tool arguments onto a typed request.
func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return invalidInput("I couldn't read the request.")
	}
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return invalidInput("The value given for %s has the wrong type.", typeErr.Field)
		}
		return invalidInput("I couldn't read the request.")
	}
	return nil
}

// instant is a parsed time argument. Date-only values are all-day markers
// at local midnight.
type instant struct {
	t      time.Time
	allDay bool
}

func parseInstant(value string, loc *time.Location) (instant, error) {
	v := strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return instant{t: t}, nil
	}
	if t, err := time.ParseInLocation(dateOnlyLayout, v, loc); err == nil {
		return instant{t: t, allDay: true}, nil
	}
	return instant{}, invalidInput("I couldn't understand the date \"%s\". Please try again with a clearer date format.", value)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// upperBound turns a range end into an exclusive instant. A date covers the
// whole day.
func (i instant) upperBound() time.Time {
	if i.allDay {
		return i.t.AddDate(0, 0, 1)
	}
	return i.t
}

// extractEmails pulls the email addresses out of a free-form attendee
// string, lowercased and without duplicates.
func extractEmails(s string) []string {
	var emails []string
	seen := make(map[string]bool)
	for _, m := range emailPattern.FindAllString(s, -1) {
		email := strings.ToLower(m)
		if seen[email] {
			continue
		}
		seen[email] = true
		emails = append(emails, email)
	}
	return emails
}

// parseRecurrence accepts an RRULE with or without the "RRULE:" prefix.
func parseRecurrence(s string) ([]string, error) {
	rule := strings.ToUpper(strings.TrimSpace(s))
	if rule == "" {
		return nil, nil
	}
	rule = strings.TrimPrefix(rule, "RRULE:")
	if !strings.Contains(rule, "FREQ=") {
		return nil, invalidInput("I couldn't understand the recurrence \"%s\". Please describe it as a rule like FREQ=WEEKLY;BYDAY=MO.", s)
	}
	return []string{"RRULE:" + rule}, nil
}

type reminderParam struct {
	Method  string `json:"method"`
	Minutes int64  `json:"minutes"`
}

type createRequest struct {
	Summary       string          `json:"summary"`
	StartDateTime string          `json:"startDateTime"`
	EndDateTime   string          `json:"endDateTime"`
	AllDay        bool            `json:"allDay"`
	Description   string          `json:"description"`
	Location      string          `json:"location"`
	Attendees     string          `json:"attendees"`
	Recurrence    string          `json:"recurrence"`
	Reminders     []reminderParam `json:"reminders"`
}

// toInput validates the request and resolves its defaults. An all-day end
// date is inclusive; the returned End is the exclusive day after.
func (r createRequest) toInput(loc *time.Location) (calendar.EventInput, error) {
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return calendar.EventInput{}, invalidInput("I need a title for the event.")
	}
	if strings.TrimSpace(r.StartDateTime) == "" {
		return calendar.EventInput{}, invalidInput("I need to know when the event starts.")
	}
	start, err := parseInstant(r.StartDateTime, loc)
	if err != nil {
		return calendar.EventInput{}, err
	}

	allDay := r.AllDay || start.allDay
	startTime := start.t
	if allDay {
		startTime = startOfDay(start.t, loc)
	}

	var endTime time.Time
	switch {
	case strings.TrimSpace(r.EndDateTime) != "":
		end, err := parseInstant(r.EndDateTime, loc)
		if err != nil {
			return calendar.EventInput{}, err
		}
		endTime = end.t
		if allDay {
			endTime = startOfDay(end.t, loc).AddDate(0, 0, 1)
		}
	case allDay:
		endTime = startTime.AddDate(0, 0, 1)
	default:
		endTime = startTime.Add(defaultEventLength)
	}
	if endTime.Before(startTime) {
		return calendar.EventInput{}, invalidInput("The end time must be after the start time.")
	}

	recurrence, err := parseRecurrence(r.Recurrence)
	if err != nil {
		return calendar.EventInput{}, err
	}

	reminders := make([]calendar.Reminder, 0, len(r.Reminders))
	for _, rem := range r.Reminders {
		method := strings.ToLower(strings.TrimSpace(rem.Method))
		if method != "popup" && method != "email" {
			return calendar.EventInput{}, invalidInput("Reminders can be a popup or an email, not \"%s\".", rem.Method)
		}
		if rem.Minutes < 0 || rem.Minutes > maxReminderMinutes {
			return calendar.EventInput{}, invalidInput("A reminder must be between 0 and %d minutes before the event.", maxReminderMinutes)
		}
		reminders = append(reminders, calendar.Reminder{Method: method, Minutes: rem.Minutes})
	}

	return calendar.EventInput{
		Summary:     summary,
		Description: r.Description,
		Location:    r.Location,
		Start:       startTime,
		End:         endTime,
		AllDay:      allDay,
		Attendees:   extractEmails(r.Attendees),
		Recurrence:  recurrence,
		Reminders:   reminders,
	}, nil
}

type quickAddRequest struct {
	Text string `json:"text"`
}

type listRequest struct {
	TimeMin     string `json:"timeMin"`
	TimeMax     string `json:"timeMax"`
	SearchQuery string `json:"searchQuery"`
	MaxResults  int64  `json:"maxResults"`
}

// listParams is the resolved listing recorded as the session's last query.
type listParams struct {
	TimeMin     time.Time `json:"timeMin"`
	TimeMax     time.Time `json:"timeMax"`
	SearchQuery string    `json:"searchQuery,omitempty"`
	MaxResults  int64     `json:"maxResults"`
}

func (r listRequest) toOptions(now time.Time, loc *time.Location) (calendar.ListOptions, error) {
	timeMin := now
	if strings.TrimSpace(r.TimeMin) != "" {
		in, err := parseInstant(r.TimeMin, loc)
		if err != nil {
			return calendar.ListOptions{}, err
		}
		timeMin = in.t
	}
	timeMax := timeMin.Add(defaultListWindow)
	if strings.TrimSpace(r.TimeMax) != "" {
		in, err := parseInstant(r.TimeMax, loc)
		if err != nil {
			return calendar.ListOptions{}, err
		}
		timeMax = in.upperBound()
	}
	if !timeMax.After(timeMin) {
		return calendar.ListOptions{}, invalidInput("The end of the time range must be after its start.")
	}

	maxResults := r.MaxResults
	switch {
	case maxResults <= 0:
		maxResults = defaultListMax
	case maxResults > maxListResults:
		maxResults = maxListResults
	}

	return calendar.ListOptions{
		TimeMin:    timeMin,
		TimeMax:    timeMax,
		Query:      strings.TrimSpace(r.SearchQuery),
		MaxResults: maxResults,
	}, nil
}

type eventUpdates struct {
	Summary       string `json:"summary"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
	Location      string `json:"location"`
	Description   string `json:"description"`
}

type updateRequest struct {
	EventID     string       `json:"eventId"`
	SearchQuery string       `json:"searchQuery"`
	Updates     eventUpdates `json:"updates"`
}

// toPatch validates the field updates. Blank fields are left unchanged.
// The start decides whether the event becomes all-day; a lone date-only end
// keeps an all-day event all-day and is inclusive.
func (u eventUpdates) toPatch(loc *time.Location) (calendar.EventPatch, error) {
	var patch calendar.EventPatch
	if s := strings.TrimSpace(u.Summary); s != "" {
		patch.Summary = &s
	}
	if u.Location != "" {
		patch.Location = &u.Location
	}
	if u.Description != "" {
		patch.Description = &u.Description
	}
	if strings.TrimSpace(u.StartDateTime) != "" {
		start, err := parseInstant(u.StartDateTime, loc)
		if err != nil {
			return calendar.EventPatch{}, err
		}
		patch.Start = &start.t
		patch.AllDay = start.allDay
	}
	if strings.TrimSpace(u.EndDateTime) != "" {
		end, err := parseInstant(u.EndDateTime, loc)
		if err != nil {
			return calendar.EventPatch{}, err
		}
		if patch.Start == nil {
			patch.AllDay = end.allDay
		}
		endTime := end.t
		if patch.AllDay {
			endTime = startOfDay(end.t, loc).AddDate(0, 0, 1)
		}
		patch.End = &endTime
	}
	if patch.Start != nil && patch.End != nil && patch.End.Before(*patch.Start) {
		return calendar.EventPatch{}, invalidInput("The end time must be after the start time.")
	}
	if patch.Empty() {
		return calendar.EventPatch{}, invalidInput("Please tell me what to change about the event.")
	}
	return patch, nil
}

// completePatch gives a moved event an end. The event keeps its length when
// it is known, otherwise it gets the default length.
func completePatch(patch *calendar.EventPatch, target *calendar.EventSummary) {
	if patch.Start == nil || patch.End != nil {
		return
	}
	var end time.Time
	switch {
	case target != nil && target.End.After(target.Start) && target.AllDay == patch.AllDay:
		end = patch.Start.Add(target.End.Sub(target.Start))
	case patch.AllDay:
		end = patch.Start.AddDate(0, 0, 1)
	default:
		end = patch.Start.Add(defaultEventLength)
	}
	patch.End = &end
}

type deleteRequest struct {
	EventID           string `json:"eventId"`
	SearchQuery       string `json:"searchQuery"`
	SendNotifications *bool  `json:"sendNotifications"`
}

func (r deleteRequest) notify() bool {
	return r.SendNotifications == nil || *r.SendNotifications
}

type freeBusyRequest struct {
	TimeMin string `json:"timeMin"`
	TimeMax string `json:"timeMax"`
}

type conflictRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// parseRange validates a required time range. A date-only end covers that
// whole day.
func parseRange(from, to string, loc *time.Location) (calendar.TimeRange, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return calendar.TimeRange{}, invalidInput("I need both a start and an end time to check your calendar.")
	}
	start, err := parseInstant(from, loc)
	if err != nil {
		return calendar.TimeRange{}, err
	}
	end, err := parseInstant(to, loc)
	if err != nil {
		return calendar.TimeRange{}, err
	}
	r := calendar.TimeRange{Start: start.t, End: end.upperBound()}
	if !r.End.After(r.Start) {
		return calendar.TimeRange{}, invalidInput("The end of the time range must be after its start.")
	}
	return r, nil
}
