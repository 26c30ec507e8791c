// Package common provides shared utilities for the MCP tool implementations:
// session id extraction and the instrumented handler wrapper.
package common
