package cmd

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/voicecal/internal/tools/calendar_tools"
)

const (
	categoryEvents     = "Event Tools"
	categoryScheduling = "Scheduling Tools"
	categoryOther      = "Other"
)

// docCategories fixes the order sections appear in.
var docCategories = []string{categoryEvents, categoryScheduling, categoryOther}

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Write a markdown reference of the calendar tools",
		Long: `Render the registered calendar tools, their arguments and defaults as
markdown. The output is built from the same definitions the server
registers, so it cannot drift from what voice agents actually see.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}

func runGenerateDocs(out io.Writer, outputFile string) error {
	doc := generateToolsMarkdown(calendar_tools.Tools())
	if outputFile == "" {
		_, err := io.WriteString(out, doc)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputFile, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote tool reference to %s\n", outputFile)
	return nil
}

func toolCategory(name string) string {
	switch name {
	case calendar_tools.ToolCreateEvent,
		calendar_tools.ToolQuickAdd,
		calendar_tools.ToolListEvents,
		calendar_tools.ToolUpdateEvent,
		calendar_tools.ToolDeleteEvent:
		return categoryEvents
	case calendar_tools.ToolCheckFreeBusy, calendar_tools.ToolCheckConflict:
		return categoryScheduling
	}
	return categoryOther
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	grouped := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := toolCategory(tool.Name)
		grouped[c] = append(grouped[c], tool)
	}

	var b bytes.Buffer
	b.WriteString("# MCP Tools Reference\n\n")
	b.WriteString("Calendar tools exposed by `voicecal serve`. Generated from the tool definitions; do not edit by hand.\n\n")

	b.WriteString("## Contents\n\n")
	for _, c := range docCategories {
		if len(grouped[c]) > 0 {
			fmt.Fprintf(&b, "- [%s](#%s)\n", c, strings.ToLower(strings.ReplaceAll(c, " ", "-")))
		}
	}

	b.WriteString(`
## Sessions

Every tool takes a ` + "`sessionId`" + ` naming the phone call it belongs to.
The most recent listing of a call is remembered, so later requests can refer
to "that meeting" or "the second one". Calls never see each other's context,
and a call's context is dropped once it has been idle for a while.

## Responses

Results are JSON objects with ` + "`success`" + ` and a ` + "`message`" + ` that can be read out
to the caller. Failures are error results holding ` + "`{\"error\": ...}`" + ` with an
equally speakable sentence.

`)

	for _, c := range docCategories {
		section := grouped[c]
		if len(section) == 0 {
			continue
		}
		slices.SortFunc(section, func(x, y mcp.Tool) int { return strings.Compare(x.Name, y.Name) })

		fmt.Fprintf(&b, "## %s\n\n", c)
		for _, tool := range section {
			writeToolMarkdown(&b, tool)
		}
	}
	return b.String()
}

func writeToolMarkdown(w io.Writer, tool mcp.Tool) {
	fmt.Fprintf(w, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(w, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}
	fmt.Fprintln(w, "**Arguments:**")
	for _, name := range slices.Sorted(maps.Keys(props)) {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		kind, _ := prop["type"].(string)
		if kind == "" {
			kind = "any"
		}
		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}
		desc, _ := prop["description"].(string)
		if desc == "" {
			desc = kind + " parameter"
		}

		fmt.Fprintf(w, "- `%s` (%s, %s): %s", name, kind, presence, desc)
		if def, ok := prop["default"]; ok {
			fmt.Fprintf(w, " (default: `%v`)", def)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}
