package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"playlog/bridge"
	"playlog/config"
	"playlog/logger"
	"playlog/publisher"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the publishing agent",
	Long: `Watches the player status file and ships start/stop events to the
configured collector. Reloads the delivery URL and signing secret when the
.env file changes. On SIGINT/SIGTERM the pipeline is drained before exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
		})

		// Missing URL or secret is fatal; the pipeline never starts.
		ep, err := cfg.Endpoint()
		if err != nil {
			return err
		}

		pipeline, err := publisher.StartPipeline(nil, ep.URL, []byte(ep.Secret))
		if err != nil {
			return err
		}

		notifier := bridge.NewNotifier(pipeline)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			if err := config.Watch(ctx, cfg.EnvFile, notifier.ConfigChanged); err != nil {
				logger.Error("config watcher stopped", logger.ErrorField(err))
			}
		}()

		watcher := bridge.NewStatusWatcher(cfg.StatusFile, notifier)
		watcherDone := make(chan struct{})
		go func() {
			defer close(watcherDone)
			if err := watcher.Run(ctx); err != nil {
				logger.Error("status watcher stopped", logger.ErrorField(err))
			}
		}()

		logger.Info("agent started", logger.String("url", ep.URL))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down agent")
		cancel()
		// Let the watcher emit its final stop event before draining.
		<-watcherDone
		pipeline.Shutdown()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
