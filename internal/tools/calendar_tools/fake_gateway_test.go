package calendar_tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teemow/voicecal/internal/calendar"
)

// fakeGateway is an in-memory calendar.
type fakeGateway struct {
	mu sync.Mutex

	connected bool
	initErr   error
	failWith  error
	loc       *time.Location

	events []calendar.EventSummary
	busy   []calendar.TimeRange
	nextID int

	calls     []string
	lastInput calendar.EventInput
	lastPatch calendar.EventPatch
	lastList  calendar.ListOptions
	notified  []bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{connected: true, loc: time.UTC}
}

func (g *fakeGateway) record(name string) {
	g.calls = append(g.calls, name)
}

func (g *fakeGateway) called(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGateway) Initialize(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("Initialize")
	if g.initErr != nil {
		return false, g.initErr
	}
	return g.connected, nil
}

func (g *fakeGateway) Location() *time.Location {
	return g.loc
}

func (g *fakeGateway) add(ev calendar.EventSummary) calendar.EventSummary {
	g.nextID++
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("evt-%d", g.nextID)
	}
	ev.HTMLLink = "https://calendar.example.com/event?eid=" + ev.ID
	ev.Status = "confirmed"
	g.events = append(g.events, ev)
	return ev
}

func (g *fakeGateway) CreateEvent(ctx context.Context, input calendar.EventInput) (*calendar.EventSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("CreateEvent")
	g.lastInput = input
	if g.failWith != nil {
		return nil, g.failWith
	}
	ev := calendar.EventSummary{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start:       input.Start,
		End:         input.End,
		AllDay:      input.AllDay,
	}
	for _, email := range input.Attendees {
		ev.Attendees = append(ev.Attendees, calendar.AttendeeInfo{Email: email, ResponseStatus: "needsAction"})
	}
	created := g.add(ev)
	return &created, nil
}

func (g *fakeGateway) QuickAdd(ctx context.Context, text string) (*calendar.EventSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("QuickAdd")
	if g.failWith != nil {
		return nil, g.failWith
	}
	start := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	created := g.add(calendar.EventSummary{
		Summary: strings.TrimSuffix(text, " tomorrow at noon"),
		Start:   start,
		End:     start.Add(time.Hour),
	})
	return &created, nil
}

func (g *fakeGateway) ListEvents(ctx context.Context, opts calendar.ListOptions) ([]calendar.EventSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("ListEvents")
	g.lastList = opts
	if g.failWith != nil {
		return nil, g.failWith
	}
	window := calendar.TimeRange{Start: opts.TimeMin, End: opts.TimeMax}
	var out []calendar.EventSummary
	for _, ev := range g.events {
		if !window.Overlaps(calendar.TimeRange{Start: ev.Start, End: ev.End}) {
			continue
		}
		if opts.Query != "" && !strings.Contains(strings.ToLower(ev.Summary), strings.ToLower(opts.Query)) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if opts.MaxResults > 0 && int64(len(out)) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out, nil
}

func (g *fakeGateway) UpdateEvent(ctx context.Context, eventID string, patch calendar.EventPatch) (*calendar.EventSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("UpdateEvent")
	g.lastPatch = patch
	if g.failWith != nil {
		return nil, g.failWith
	}
	for i := range g.events {
		ev := &g.events[i]
		if ev.ID != eventID {
			continue
		}
		if patch.Summary != nil {
			ev.Summary = *patch.Summary
		}
		if patch.Location != nil {
			ev.Location = *patch.Location
		}
		if patch.Description != nil {
			ev.Description = *patch.Description
		}
		if patch.Start != nil {
			ev.Start = *patch.Start
			ev.AllDay = patch.AllDay
		}
		if patch.End != nil {
			ev.End = *patch.End
		}
		updated := *ev
		return &updated, nil
	}
	return nil, fmt.Errorf("failed to update event: %w", calendar.ErrNotFound)
}

func (g *fakeGateway) DeleteEvent(ctx context.Context, eventID string, notify bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("DeleteEvent")
	g.notified = append(g.notified, notify)
	if g.failWith != nil {
		return g.failWith
	}
	for i, ev := range g.events {
		if ev.ID == eventID {
			g.events = append(g.events[:i], g.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("failed to delete event: %w", calendar.ErrNotFound)
}

func (g *fakeGateway) QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time) ([]calendar.TimeRange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("QueryFreeBusy")
	if g.failWith != nil {
		return nil, g.failWith
	}
	window := calendar.TimeRange{Start: timeMin, End: timeMax}
	var out []calendar.TimeRange
	for _, b := range g.busy {
		if b.Overlaps(window) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (g *fakeGateway) FindEventByTitle(ctx context.Context, title string) (*calendar.EventSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("FindEventByTitle")
	if g.failWith != nil {
		return nil, g.failWith
	}
	ev, ok := calendar.MatchTitle(g.events, title)
	if !ok {
		return nil, fmt.Errorf("%w: %q", calendar.ErrNotFound, title)
	}
	return &ev, nil
}
