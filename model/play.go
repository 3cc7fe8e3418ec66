package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Play is the collector-side record of a finished playback, one row per
// accepted stop event.
type Play struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Artist      string    `gorm:"size:255;not null;index" json:"artist"`
	AlbumArtist string    `gorm:"size:255" json:"albumArtist,omitempty"`
	Album       string    `gorm:"size:255;not null" json:"album"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Year        *uint     `json:"year,omitempty"`
	DiscNumber  *uint     `json:"discNumber,omitempty"`
	TotalDiscs  *uint     `json:"totalDiscs,omitempty"`
	TrackNumber *uint     `json:"trackNumber,omitempty"`
	TotalTracks *uint     `json:"totalTracks,omitempty"`
	Duration    float64   `json:"duration"`
	PlayTime    float64   `json:"playTime"`
	StartedAt   time.Time `gorm:"index" json:"startedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName overrides the default table name.
func (Play) TableName() string {
	return "plays"
}

// BeforeCreate assigns a UUID primary key.
func (p *Play) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// PlayFromStop builds a Play record from an accepted stop event.
func PlayFromStop(e Stop) *Play {
	return &Play{
		Artist:      e.Artist,
		AlbumArtist: e.AlbumArtist,
		Album:       e.Album,
		Title:       e.Title,
		Year:        e.Year,
		DiscNumber:  e.DiscNumber,
		TotalDiscs:  e.TotalDiscs,
		TrackNumber: e.TrackNumber,
		TotalTracks: e.TotalTracks,
		Duration:    e.Duration,
		PlayTime:    e.PlayTime,
		StartedAt:   time.Unix(e.StartedAt, 0),
	}
}
