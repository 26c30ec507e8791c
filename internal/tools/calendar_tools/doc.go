// Package calendar_tools provides the calendar command tools the voice agent
// calls through MCP (Model Context Protocol).
//
// Seven tools are exposed: createCalendarEvent, quickAddEvent,
// listCalendarEvents, updateCalendarEvent, deleteCalendarEvent, checkFreeBusy
// and checkSchedulingConflict. Every tool takes a sessionId identifying the
// phone call. Arguments are decoded into typed requests and validated before
// the calendar is contacted. Times are RFC 3339 instants or YYYY-MM-DD dates
// for all-day events; turning "tomorrow at ten" into a timestamp is the
// caller's job.
//
// A successful call returns {"success": true, "message": ...} plus data, where
// message is meant to be read out on the call. A failed call returns an error
// result holding {"error": ...} with an equally speakable sentence. Provider
// details are logged, never spoken.
//
// Update and delete find their target by explicit id, by a phrase that refers
// back to the last listing of the conversation ("that cooking class"), or by
// a title search at the provider, in that order.
package calendar_tools
