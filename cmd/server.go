package cmd

import (
	"github.com/spf13/cobra"

	"playlog/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the collector server",
	Long: `Starts the HTTP collector: verifies event signatures, records plays in
MySQL, tracks the now-playing state in Redis, and broadcasts a websocket
live feed.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
