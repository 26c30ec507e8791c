package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/voicecal/internal/google"
	"github.com/teemow/voicecal/internal/instrumentation"
	"github.com/teemow/voicecal/internal/logging"
)

const (
	DefaultCalendarID = "primary"
	DefaultTimeout    = 15 * time.Second
	DefaultRateLimit  = 5
	DefaultMaxRetries = 3

	listPageSize    int64 = 250
	maxListedEvents int64 = 2500

	// title search window
	searchLookBack  = 30 * 24 * time.Hour
	searchLookAhead = 90 * 24 * time.Hour
)

// ErrNotFound is returned when a title search matches no event.
var ErrNotFound = errors.New("event not found")

// Credentials supplies the access token for provider calls.
type Credentials interface {
	google.TokenProvider
	Initialize(ctx context.Context) (bool, error)
}

// Config tunes a Client. Zero values fall back to the package defaults.
type Config struct {
	CalendarID string
	TimeZone   string

	// Endpoint overrides the provider base URL.
	Endpoint      string
	BaseTransport http.RoundTripper

	// RateLimit is the sustained provider calls per second; negative
	// disables pacing.
	RateLimit  float64
	Timeout    time.Duration
	MaxRetries uint
	RetryDelay time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Client wraps the Google Calendar service
type Client struct {
	svc        *calendar.Service
	creds      Credentials
	calendarID string
	timeZone   string
	loc        *time.Location
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries uint
	retryDelay time.Duration
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a calendar client that authorizes every request with a
// token from creds.
func NewClient(ctx context.Context, creds Credentials, cfg Config) (*Client, error) {
	if creds == nil {
		return nil, fmt.Errorf("credentials cannot be nil")
	}

	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", cfg.TimeZone, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit < 0 {
		limit = rate.Inf
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	opts := []option.ClientOption{option.WithHTTPClient(google.NewHTTPClient(creds, cfg.BaseTransport))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{
		svc:        svc,
		creds:      creds,
		calendarID: cfg.CalendarID,
		timeZone:   cfg.TimeZone,
		loc:        loc,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		metrics:    cfg.Metrics,
		logger:     logging.WithOperation(cfg.Logger, "calendar").With(logging.Calendar(cfg.CalendarID)),
		now:        cfg.Now,
	}, nil
}

// CalendarID returns the calendar this client operates on.
func (c *Client) CalendarID() string { return c.calendarID }

// Location returns the configured calendar time zone.
func (c *Client) Location() *time.Location { return c.loc }

// Initialize loads stored credentials and reports whether the calendar is
// connected.
func (c *Client) Initialize(ctx context.Context) (bool, error) {
	return c.creds.Initialize(ctx)
}

// refreshIfNeeded makes sure the access token is valid before a provider
// call. The transport then reuses the cached token.
func (c *Client) refreshIfNeeded(ctx context.Context) error {
	if _, err := c.creds.Token(ctx); err != nil {
		return fmt.Errorf("failed to obtain calendar credentials: %w", err)
	}
	return nil
}

// do runs one provider call: refresh, pace, trace, time out and record.
// Reads retry transient failures; writes run exactly once.
func (c *Client) do(ctx context.Context, operation, eventID string, retry bool, fn func(ctx context.Context) error) error {
	if err := c.refreshIfNeeded(ctx); err != nil {
		return err
	}

	attrs := instrumentation.NewSpanAttributeBuilder().
		WithCalendar(c.calendarID).
		WithEvent(eventID).
		Build()
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, operation, attrs...)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	attempt := 1
	tries := uint(1)
	if retry {
		tries = c.maxRetries
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		err := fn(ctx)
		if err != nil && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, d time.Duration) {
			attempt++
			instrumentation.AddSpanEvent(span, "retry", attribute.Int(instrumentation.SpanAttrAttempt, attempt))
			c.metrics.RecordAPIRetry(ctx, operation)
			c.logger.Debug("Retrying calendar call", logging.Operation(operation), logging.Err(err), "delay", d)
		}),
	)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		c.logger.Warn("Calendar call failed", logging.Operation(operation), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))
	return err
}

// isTransient reports whether a provider error is worth retrying.
func isTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}

// IsNotFound reports whether err is a provider 404/410 or ErrNotFound.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}

// ListEvents lists single event instances ordered by start time. Pages are
// followed until opts.MaxResults events are collected, or maxListedEvents
// when MaxResults is not set.
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) ([]EventSummary, error) {
	limit := opts.MaxResults
	if limit <= 0 || limit > maxListedEvents {
		limit = maxListedEvents
	}

	var summaries []EventSummary
	err := c.do(ctx, instrumentation.OperationList, "", true, func(ctx context.Context) error {
		summaries = summaries[:0]
		pageToken := ""
		for int64(len(summaries)) < limit {
			call := c.svc.Events.List(c.calendarID).
				SingleEvents(true).
				OrderBy("startTime").
				MaxResults(min(listPageSize, limit-int64(len(summaries)))).
				Context(ctx)
			if !opts.TimeMin.IsZero() {
				call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
			}
			if !opts.TimeMax.IsZero() {
				call = call.TimeMax(opts.TimeMax.Format(time.RFC3339))
			}
			if opts.Query != "" {
				call = call.Q(opts.Query)
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			events, err := call.Do()
			if err != nil {
				return err
			}
			for _, event := range events.Items {
				summaries = append(summaries, toEventSummary(event, c.loc))
			}
			if events.NextPageToken == "" || len(events.Items) == 0 {
				break
			}
			pageToken = events.NextPageToken
		}
		if int64(len(summaries)) > limit {
			summaries = summaries[:limit]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return summaries, nil
}

// CreateEvent creates a new event
func (c *Client) CreateEvent(ctx context.Context, input EventInput) (*EventSummary, error) {
	tz := input.TimeZone
	if tz == "" {
		tz = c.timeZone
	}

	event := &calendar.Event{
		Summary:     input.Summary,
		Description: input.Description,
		Location:    input.Location,
		Start:       toEventDateTime(input.Start, input.AllDay, tz),
		End:         toEventDateTime(input.End, input.AllDay, tz),
		Recurrence:  input.Recurrence,
	}

	for _, email := range input.Attendees {
		event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
	}

	reminders := input.Reminders
	if len(reminders) == 0 {
		reminders = []Reminder{{Method: "popup", Minutes: 10}}
	}
	event.Reminders = &calendar.EventReminders{
		UseDefault:      false,
		ForceSendFields: []string{"UseDefault"},
	}
	for _, r := range reminders {
		event.Reminders.Overrides = append(event.Reminders.Overrides, &calendar.EventReminder{
			Method:          r.Method,
			Minutes:         r.Minutes,
			ForceSendFields: []string{"Minutes"},
		})
	}

	var created *calendar.Event
	err := c.do(ctx, instrumentation.OperationCreate, "", false, func(ctx context.Context) error {
		call := c.svc.Events.Insert(c.calendarID, event).Context(ctx)
		if len(event.Attendees) > 0 {
			call = call.SendUpdates("all")
		}
		var err error
		created, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	summary := toEventSummary(created, c.loc)
	c.logger.Info("Created event", logging.EventID(summary.ID), logging.Attendees(input.Attendees))
	return &summary, nil
}

// QuickAdd creates an event from a free-text description parsed by the
// provider.
func (c *Client) QuickAdd(ctx context.Context, text string) (*EventSummary, error) {
	var created *calendar.Event
	err := c.do(ctx, instrumentation.OperationQuickAdd, "", false, func(ctx context.Context) error {
		var err error
		created, err = c.svc.Events.QuickAdd(c.calendarID, text).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to quick add event: %w", err)
	}
	summary := toEventSummary(created, c.loc)
	return &summary, nil
}

// UpdateEvent patches an existing event. Only the fields set in patch change.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) (*EventSummary, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	tz := patch.TimeZone
	if tz == "" {
		tz = c.timeZone
	}

	event := &calendar.Event{}
	if patch.Summary != nil {
		event.Summary = *patch.Summary
	}
	if patch.Description != nil {
		event.Description = *patch.Description
		event.ForceSendFields = append(event.ForceSendFields, "Description")
	}
	if patch.Location != nil {
		event.Location = *patch.Location
		event.ForceSendFields = append(event.ForceSendFields, "Location")
	}
	if patch.Start != nil {
		event.Start = toEventDateTime(*patch.Start, patch.AllDay, tz)
	}
	if patch.End != nil {
		event.End = toEventDateTime(*patch.End, patch.AllDay, tz)
	}

	var updated *calendar.Event
	err := c.do(ctx, instrumentation.OperationUpdate, eventID, false, func(ctx context.Context) error {
		var err error
		updated, err = c.svc.Events.Patch(c.calendarID, eventID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	summary := toEventSummary(updated, c.loc)
	return &summary, nil
}

// DeleteEvent deletes an event. notify controls whether attendees receive a
// cancellation.
func (c *Client) DeleteEvent(ctx context.Context, eventID string, notify bool) error {
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	sendUpdates := "none"
	if notify {
		sendUpdates = "all"
	}
	err := c.do(ctx, instrumentation.OperationDelete, eventID, false, func(ctx context.Context) error {
		return c.svc.Events.Delete(c.calendarID, eventID).SendUpdates(sendUpdates).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	c.logger.Info("Deleted event", logging.EventID(eventID))
	return nil
}

// QueryFreeBusy returns the busy ranges of the calendar between timeMin and
// timeMax, sorted by start.
func (c *Client) QueryFreeBusy(ctx context.Context, timeMin, timeMax time.Time) ([]TimeRange, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin:  timeMin.Format(time.RFC3339),
		TimeMax:  timeMax.Format(time.RFC3339),
		TimeZone: c.timeZone,
		Items:    []*calendar.FreeBusyRequestItem{{Id: c.calendarID}},
	}

	var resp *calendar.FreeBusyResponse
	err := c.do(ctx, instrumentation.OperationFreeBusy, "", true, func(ctx context.Context) error {
		var err error
		resp, err = c.svc.Freebusy.Query(req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query free/busy: %w", err)
	}

	cal, ok := resp.Calendars[c.calendarID]
	if !ok {
		return nil, fmt.Errorf("failed to query free/busy: calendar %q missing from response", c.calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("failed to query free/busy: %s", cal.Errors[0].Reason)
	}

	busy := make([]TimeRange, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("failed to parse busy period start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("failed to parse busy period end %q: %w", period.End, err)
		}
		busy = append(busy, TimeRange{Start: start, End: end})
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

// FindEventByTitle searches a wide window around now for the event whose
// title best matches title. It returns ErrNotFound when nothing matches.
func (c *Client) FindEventByTitle(ctx context.Context, title string) (*EventSummary, error) {
	now := c.now()
	events, err := c.ListEvents(ctx, ListOptions{
		TimeMin:    now.Add(-searchLookBack),
		TimeMax:    now.Add(searchLookAhead),
		MaxResults: maxListedEvents,
	})
	if err != nil {
		return nil, err
	}
	ev, ok := MatchTitle(events, title)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, title)
	}
	return &ev, nil
}
