// Package calendar is the gateway to the Google Calendar API.
//
// A Client operates on a single calendar (primary by default) and wraps the
// provider's insert, list, patch, delete, quick-add and free/busy primitives.
// Every call first makes sure the stored credential is fresh, then waits on a
// rate limiter and runs inside a client span with a per-call timeout. Reads
// are retried on 429 and 5xx responses; writes run exactly once.
//
// FindEventByTitle backs the spoken "that meeting" style lookups when the
// conversation context has nothing to offer. It lists a wide window around
// now and applies MatchTitle locally.
//
// Example usage:
//
//	client, err := calendar.NewClient(ctx, manager, calendar.Config{TimeZone: "Europe/Berlin"})
//	if err != nil {
//	    return err
//	}
//	events, err := client.ListEvents(ctx, calendar.ListOptions{
//	    TimeMin: time.Now(),
//	    TimeMax: time.Now().AddDate(0, 0, 7),
//	})
package calendar
