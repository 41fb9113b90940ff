// Package cli implements the mcpd command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected during build.
	Version = "dev"
	// Commit is injected during build.
	Commit = "none"
	// BuildDate is injected during build.
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcpd",
	Short: "mcpd is a real-time control-plane server",
	Long: `mcpd maintains persistent WebSocket connections with clients, routes
JSON messages through plugins and registered handlers, and relays
selected traffic to upstream HTTP services.

Configuration is read from a YAML or JSON file; flags override the
file. Run 'mcpd serve' to start the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
