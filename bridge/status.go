package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"playlog/logger"
	"playlog/model"
)

// Status is the now-playing snapshot a player exports to the status file.
// Tags carries the raw metadata dictionary so the same translation rules
// apply as for any other TrackSource.
type Status struct {
	State    string            `json:"state"` // "playing" or "stopped"
	Duration float64           `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

// statusSource adapts a Status snapshot to the TrackSource interface.
type statusSource struct {
	mu sync.Mutex
	st Status
}

func (s *statusSource) Lock()   { s.mu.Lock() }
func (s *statusSource) Unlock() { s.mu.Unlock() }

func (s *statusSource) Metadata() (map[string]string, error) {
	if s.st.Tags == nil {
		return nil, fmt.Errorf("status has no tags")
	}
	return s.st.Tags, nil
}

func (s *statusSource) Duration() float64 {
	return s.st.Duration
}

// StatusWatcher watches a player-exported status file and synthesizes
// start/stop events from state transitions: a new track emits a stop for the
// previous one (with the measured play time) followed by a start; a stopped
// state emits a final stop.
type StatusWatcher struct {
	path      string
	notifier  *Notifier
	current   *statusSource
	track     *model.TrackInfo
	startedAt time.Time
}

// NewStatusWatcher creates a watcher over the status file at path.
func NewStatusWatcher(path string, notifier *Notifier) *StatusWatcher {
	return &StatusWatcher{path: path, notifier: notifier}
}

// Run watches the status file until ctx is cancelled. A final stop event for
// the in-flight track is emitted on the way out so the pipeline can drain it.
func (w *StatusWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	logger.Info("watching player status", logger.String("path", w.path))

	// Pick up whatever is already in the file.
	w.reload()

	for {
		select {
		case <-ctx.Done():
			w.apply(Status{State: "stopped"})
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
			// The player may have replaced the file atomically.
			_ = watcher.Add(w.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("status watcher error", logger.ErrorField(err))
		}
	}
}

func (w *StatusWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		logger.Error("cannot read status file", logger.ErrorField(err))
		return
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Error("cannot parse status file", logger.ErrorField(err))
		return
	}
	w.apply(st)
}

// apply diffs the new status against the tracked playback state and emits
// the corresponding events.
func (w *StatusWatcher) apply(st Status) {
	now := time.Now()

	if st.State != "playing" {
		if w.track != nil {
			w.notifier.SongChanged(w.current, now.Sub(w.startedAt).Seconds(), w.startedAt)
			w.current, w.track = nil, nil
		}
		return
	}

	src := &statusSource{st: st}
	info, err := ReadTrackInfo(src)
	if err != nil {
		logger.Error("cannot read track info from status", logger.ErrorField(err))
		return
	}

	if w.track != nil && sameTrack(*w.track, info) {
		return
	}
	if w.track != nil {
		w.notifier.SongChanged(w.current, now.Sub(w.startedAt).Seconds(), w.startedAt)
	}
	w.notifier.SongStarted(src)
	w.current = src
	w.track = &info
	w.startedAt = now
}

func sameTrack(a, b model.TrackInfo) bool {
	return a.Artist == b.Artist && a.Album == b.Album && a.Title == b.Title
}
