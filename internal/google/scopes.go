package google

import (
	calendar "google.golang.org/api/calendar/v3"
)

// CalendarScopes are the OAuth scopes a stored credential must carry.
// Full calendar access is needed for quick-add and free/busy queries.
var CalendarScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	calendar.CalendarScope,
}

// HasCalendarScope reports whether a space-separated scope string, as
// returned in a token response, grants calendar access.
func HasCalendarScope(scope string) bool {
	for _, s := range splitScopes(scope) {
		if s == calendar.CalendarScope || s == calendar.CalendarEventsScope {
			return true
		}
	}
	return false
}
