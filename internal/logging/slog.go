package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Attribute keys shared by every component.
const (
	KeyOperation = "operation"
	KeySession   = "session_id"
	KeyCalendar  = "calendar_id"
	KeyEventID   = "event_id"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
	KeyAttendees = "attendees"
)

// Mirrors instrumentation.StatusSuccess and StatusError, which cannot be
// imported from here.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New builds the process logger writing text records to w.
func New(w io.Writer, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(Tool(tool))
}

// WithSession scopes logger to one phone call.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	return logger.With(Session(sessionID))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
func Session(id string) slog.Attr { return slog.String(KeySession, id) }
func Calendar(id string) slog.Attr { return slog.String(KeyCalendar, id) }
func EventID(id string) slog.Attr { return slog.String(KeyEventID, id) }
func Tool(name string) slog.Attr { return slog.String(KeyTool, name) }
func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }

// Err returns the error attribute, or an empty group that handlers drop
// when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail hashes an address so log lines can be correlated without
// naming the person. Case is ignored.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "user:" + hex.EncodeToString(sum[:8])
}

// attendeeList defers hashing until a handler actually writes the record.
type attendeeList []string

func (a attendeeList) LogValue() slog.Value {
	hashed := make([]string, len(a))
	for i, e := range a {
		hashed[i] = AnonymizeEmail(e)
	}
	return slog.AnyValue(hashed)
}

// Attendees logs attendee addresses in anonymized form.
func Attendees(emails []string) slog.Attr {
	return slog.Any(KeyAttendees, attendeeList(emails))
}

// SanitizeToken reports only the length of a credential.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return "[token:" + strconv.Itoa(len(token)) + " chars]"
}
