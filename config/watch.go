package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"playlog/logger"
)

// Watch monitors the .env file and calls onChange with the freshly read
// delivery endpoint each time the file is rewritten. It runs until ctx is
// cancelled.
//
// A failed re-read (missing file, missing keys) is logged and onChange is not
// called, so the previous endpoint stays live.
func Watch(ctx context.Context, envFile string, onChange func(Endpoint)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(envFile); err != nil {
		return err
	}

	logger.Info("watching config for changes", logger.String("path", envFile))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, which shows up as Create.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			ep, err := ReadEndpoint(envFile)
			if err != nil {
				logger.Error("config reload failed, keeping previous endpoint",
					logger.String("path", envFile), logger.ErrorField(err))
				continue
			}

			logger.Info("config reloaded", logger.String("url", ep.URL))
			onChange(ep)

			// An atomic save may have replaced the inode; re-add the path.
			_ = watcher.Add(envFile)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", logger.ErrorField(err))
		}
	}
}
