package common

import (
	"context"
	"errors"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// SessionIDArg is the tool argument carrying the conversation session id.
const SessionIDArg = "sessionId"

// ErrMissingSessionID is returned when neither the arguments nor the
// transport identify a session.
var ErrMissingSessionID = errors.New("sessionId is required")

// SessionIDFromArgs determines the conversation session of a tool call.
//
// Priority order:
//  1. Explicit "sessionId" argument in the request
//  2. The MCP client session of the transport
func SessionIDFromArgs(ctx context.Context, args map[string]any) (string, error) {
	if id, ok := args[SessionIDArg].(string); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id), nil
	}
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil {
		if id := session.SessionID(); id != "" {
			return id, nil
		}
	}
	return "", ErrMissingSessionID
}
