package bridge

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/dhowden/tag"
)

// FileSource is a TrackSource backed by an audio file's embedded tags. Used
// by the send command to publish events for a file on disk. Tag formats do
// not carry the audio duration, so it is supplied by the caller.
type FileSource struct {
	mu       sync.Mutex
	metadata map[string]string
	duration float64
}

// OpenFile reads the tags of the audio file at path.
func OpenFile(path string, duration float64) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags from %s: %w", path, err)
	}

	metadata := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			metadata[key] = value
		}
	}
	setNum := func(key string, value int) {
		if value > 0 {
			metadata[key] = strconv.Itoa(value)
		}
	}

	set(keyArtist, m.Artist())
	set(keyAlbum, m.Album())
	set(keyTitle, m.Title())
	set("albumartist", m.AlbumArtist())
	setNum(keyYear, m.Year())
	track, totalTracks := m.Track()
	setNum(keyTrackNumber, track)
	setNum(keyTotalTracks, totalTracks)
	disc, totalDiscs := m.Disc()
	setNum(keyDiscNumber, disc)
	setNum(keyTotalDiscs, totalDiscs)

	return &FileSource{metadata: metadata, duration: duration}, nil
}

func (s *FileSource) Lock()   { s.mu.Lock() }
func (s *FileSource) Unlock() { s.mu.Unlock() }

// Metadata returns the file's tag dictionary.
func (s *FileSource) Metadata() (map[string]string, error) {
	return s.metadata, nil
}

// Duration returns the caller-supplied track length in seconds.
func (s *FileSource) Duration() float64 {
	return s.duration
}
