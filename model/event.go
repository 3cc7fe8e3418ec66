package model

import "encoding/json"

// EventType discriminates the wire representation of an event.
type EventType string

const (
	EventConfigChanged EventType = "config_changed"
	EventStart         EventType = "start"
	EventStop          EventType = "stop"
)

// Event is the closed set of occurrences the pipeline delivers. Values are
// immutable snapshots taken at creation time; once handed to the pipeline the
// producer keeps no reference.
type Event interface {
	Type() EventType
	isEvent()
}

// TrackInfo is an immutable snapshot of a track's metadata. Optional numeric
// fields are pointers so that absent values are omitted from the JSON body
// entirely rather than encoded as zero.
type TrackInfo struct {
	Artist      string  `json:"artist"`
	AlbumArtist string  `json:"album_artist,omitempty"`
	Album       string  `json:"album"`
	Title       string  `json:"title"`
	Year        *uint   `json:"year,omitempty"`
	DiscNumber  *uint   `json:"disc_number,omitempty"`
	TotalDiscs  *uint   `json:"total_discs,omitempty"`
	TrackNumber *uint   `json:"track_number,omitempty"`
	TotalTracks *uint   `json:"total_tracks,omitempty"`
	Duration    float64 `json:"duration"`
}

// ConfigChanged carries a new delivery endpoint and signing secret.
type ConfigChanged struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

func (ConfigChanged) Type() EventType { return EventConfigChanged }
func (ConfigChanged) isEvent()        {}

// Start means a track began playing.
type Start struct {
	TrackInfo
}

func (Start) Type() EventType { return EventStart }
func (Start) isEvent()        {}

// Stop means a track stopped playing. Not to be confused with the pipeline's
// stop sentinel, which shuts the worker down and is not an event at all.
type Stop struct {
	TrackInfo
	PlayTime  float64 `json:"play_time"`
	StartedAt int64   `json:"started_at"`
}

func (Stop) Type() EventType { return EventStop }
func (Stop) isEvent()        {}

type envelope struct {
	Event EventType   `json:"event"`
	Data  interface{} `json:"data"`
}

// Marshal encodes an event into its canonical wire body:
// {"event":"<type>","data":{...}}. The signer signs exactly these bytes.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{Event: e.Type(), Data: e})
}
