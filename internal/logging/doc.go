// Package logging provides structured logging utilities for voicecal.
//
// All components log through log/slog. This package keeps attribute names
// consistent and makes sure caller data that identifies people (attendee
// emails, OAuth tokens) is hashed or masked before it reaches a log line.
//
// Create a logger scoped to a tool call:
//
//	logger := logging.WithSession(logging.WithTool(slog.Default(), "listCalendarEvents"), sessionID)
//	logger.Info("listed events", logging.Status(logging.StatusSuccess))
//
// Hash emails before logging:
//
//	logger.Debug("creating event", logging.Attendees(input.Attendees))
package logging
