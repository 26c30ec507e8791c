package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voicecal",
	Short: "Calendar tools for voice assistants over MCP",
	Long: `voicecal is a Model Context Protocol (MCP) server that lets a voice agent
create, list, change and cancel events in a Google Calendar during a phone
call. It remembers what was said within a call, so "move that meeting" refers
to the meeting that was just read out.`,
	SilenceUsage: true,
}

var version = "dev"

// SetVersion records the build version for --version and the MCP handshake.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	rootCmd.SetVersionTemplate("voicecal version {{.Version}}\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
