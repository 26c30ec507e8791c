// Package cmd implements the command-line interface for voicecal.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing the calendar tools
//   - credentials: Authorize with Google, seal tokens into the encrypted credential file and inspect it
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
