package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pubsubd",
	Short: "Topic based publish/subscribe broker",
	Long: `pubsubd is a line protocol publish/subscribe broker.

Clients connect over TCP (or WebSocket at /ws) and send one command per line:
  i:<user>              identify this connection
  s:<topic>             subscribe to a topic
  u:<topic>             unsubscribe from a topic
  p:<topic>:<message>   publish a message

Subscribers receive m:<topic>:<user>:<message> lines.

Use "pubsubd [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
