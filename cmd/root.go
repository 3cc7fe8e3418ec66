package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "playlog",
	Short: "playlog ships played-song events to an HTTP collector.",
	Long: `playlog publishes music play events (track started, track stopped) to a
remote collector over HTTP, signing every delivery with HMAC-SHA256.

Run "playlog agent" next to a player to publish events, or "playlog server"
to run the collector that receives them.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
