// Package server provides the MCP server context, transport session
// management and the HTTP servers of voicecal.
//
// # Key Components
//
// ServerContext holds what every tool handler needs: the calendar gateway,
// the conversation store, metrics and the audit logger.
//
// SessionIDManager issues the session ids of the streamable HTTP transport.
// When a client ends its session, or the session sits idle past its timeout,
// the conversation context stored under that id is cleared.
//
// HTTPServer mounts the streamable HTTP transport on /mcp next to the
// health endpoints. MetricsServer exposes Prometheus metrics on a separate
// port so that operational data stays off the public listener.
package server
