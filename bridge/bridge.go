// Package bridge translates player-side callbacks into playlog events. The
// core pipeline only ever sees the validated event model built here; raw
// player state never crosses that boundary.
package bridge

import (
	"fmt"
	"strconv"
	"time"

	"playlog/config"
	"playlog/logger"
	"playlog/model"
)

const (
	keyArtist      = "artist"
	keyAlbum       = "album"
	keyTitle       = "title"
	keyYear        = "year"
	keyDiscNumber  = "disc"
	keyTotalDiscs  = "numdiscs"
	keyTrackNumber = "track"
	keyTotalTracks = "numtracks"
)

// albumArtistKeys are the alternate metadata keys an album artist may live
// under, in priority order. First match wins.
var albumArtistKeys = []string{"band", "album artist", "albumartist"}

// TrackSource is the surface the bridge needs from a player's current item.
// Lock/Unlock follow the host's own convention for guarding metadata access;
// ReadTrackInfo holds the lock for the whole read.
type TrackSource interface {
	Lock()
	Unlock()
	// Metadata returns the item's tag dictionary with lowercased keys.
	Metadata() (map[string]string, error)
	// Duration is the track length in seconds.
	Duration() float64
}

// ReadTrackInfo snapshots a TrackSource into an immutable TrackInfo.
// Artist, album and title are required; the numeric fields are optional and
// unparsable values are dropped with a warning rather than failing the read.
func ReadTrackInfo(src TrackSource) (model.TrackInfo, error) {
	src.Lock()
	defer src.Unlock()

	metadata, err := src.Metadata()
	if err != nil {
		return model.TrackInfo{}, fmt.Errorf("read metadata: %w", err)
	}

	required := func(key string) (string, error) {
		value, ok := metadata[key]
		if !ok || value == "" {
			return "", fmt.Errorf("%q is not found in track metadata", key)
		}
		return value, nil
	}

	artist, err := required(keyArtist)
	if err != nil {
		return model.TrackInfo{}, err
	}
	album, err := required(keyAlbum)
	if err != nil {
		return model.TrackInfo{}, err
	}
	title, err := required(keyTitle)
	if err != nil {
		return model.TrackInfo{}, err
	}

	var albumArtist string
	for _, key := range albumArtistKeys {
		if value, ok := metadata[key]; ok {
			albumArtist = value
			break
		}
	}

	return model.TrackInfo{
		Artist:      artist,
		AlbumArtist: albumArtist,
		Album:       album,
		Title:       title,
		Year:        optionalUint(metadata, keyYear),
		DiscNumber:  optionalUint(metadata, keyDiscNumber),
		TotalDiscs:  optionalUint(metadata, keyTotalDiscs),
		TrackNumber: optionalUint(metadata, keyTrackNumber),
		TotalTracks: optionalUint(metadata, keyTotalTracks),
		Duration:    src.Duration(),
	}, nil
}

// optionalUint parses an optional numeric tag. A missing key yields nil; an
// unparsable value is logged and dropped, never a hard error.
func optionalUint(metadata map[string]string, key string) *uint {
	value, ok := metadata[key]
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		logger.Warn("cannot parse track metadata value as uint",
			logger.String("key", key),
			logger.String("value", value),
			logger.ErrorField(err))
		return nil
	}
	u := uint(parsed)
	return &u
}

// EventSink receives the events the bridge produces. *publisher.Pipeline
// satisfies it.
type EventSink interface {
	Publish(model.Event)
}

// Notifier turns player callbacks into pipeline events. All failures are
// logged and swallowed; a callback never learns that an event was skipped.
type Notifier struct {
	sink EventSink
}

// NewNotifier creates a notifier feeding sink.
func NewNotifier(sink EventSink) *Notifier {
	return &Notifier{sink: sink}
}

// SongStarted publishes a start event for the track now playing.
func (n *Notifier) SongStarted(src TrackSource) {
	info, err := ReadTrackInfo(src)
	if err != nil {
		logger.Error("cannot read track info for start event", logger.ErrorField(err))
		return
	}
	n.sink.Publish(model.Start{TrackInfo: info})
}

// SongChanged publishes a stop event for the track that just finished.
// A nil previous track (e.g. the very first song after startup) produces no
// event.
func (n *Notifier) SongChanged(prev TrackSource, playTime float64, startedAt time.Time) {
	if prev == nil {
		return
	}
	info, err := ReadTrackInfo(prev)
	if err != nil {
		logger.Error("cannot read track info for stop event", logger.ErrorField(err))
		return
	}
	n.sink.Publish(model.Stop{
		TrackInfo: info,
		PlayTime:  playTime,
		StartedAt: startedAt.Unix(),
	})
}

// ConfigChanged publishes a reconfiguration event carrying the freshly read
// endpoint.
func (n *Notifier) ConfigChanged(ep config.Endpoint) {
	n.sink.Publish(model.ConfigChanged{URL: ep.URL, Secret: ep.Secret})
}
