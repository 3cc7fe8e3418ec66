package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"playlog/bridge"
	"playlog/config"
	"playlog/logger"
	"playlog/publisher"
)

var (
	sendStop     bool
	sendPlayTime float64
	sendDuration float64
)

var sendCmd = &cobra.Command{
	Use:   "send <audio-file>",
	Short: "Publish a single event for an audio file",
	Long: `Reads the file's embedded tags and publishes one start (or, with --stop,
one stop) event through a short-lived pipeline. Useful for testing a
collector deployment end to end.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.LogLevel(cfg.LogLevel)})

		ep, err := cfg.Endpoint()
		if err != nil {
			return err
		}

		src, err := bridge.OpenFile(args[0], sendDuration)
		if err != nil {
			return err
		}

		pipeline, err := publisher.StartPipeline(nil, ep.URL, []byte(ep.Secret))
		if err != nil {
			return err
		}

		notifier := bridge.NewNotifier(pipeline)
		if sendStop {
			playTime := sendPlayTime
			if playTime == 0 {
				playTime = sendDuration
			}
			startedAt := time.Now().Add(-time.Duration(playTime * float64(time.Second)))
			notifier.SongChanged(src, playTime, startedAt)
		} else {
			notifier.SongStarted(src)
		}

		// Shutdown drains: the event gets its delivery attempts before exit.
		pipeline.Shutdown()
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendStop, "stop", false, "send a stop event instead of a start event")
	sendCmd.Flags().Float64Var(&sendPlayTime, "play-time", 0, "seconds actually played (stop events)")
	sendCmd.Flags().Float64Var(&sendDuration, "duration", 0, "track duration in seconds")
	rootCmd.AddCommand(sendCmd)
}
