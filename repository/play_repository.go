package repository

import (
	"fmt"

	"gorm.io/gorm"

	"playlog/model"
)

// PlayRepository defines the interface for play history operations.
type PlayRepository interface {
	CreatePlay(play *model.Play) error
	ListPlays(limit, offset int) ([]*model.Play, error)
	CountPlays() (int64, error)
}

// gormPlayRepository implements PlayRepository on top of GORM/MySQL.
type gormPlayRepository struct {
	db *gorm.DB
}

// NewGormPlayRepository creates a play repository using the given connection.
func NewGormPlayRepository(db *gorm.DB) PlayRepository {
	return &gormPlayRepository{db: db}
}

// CreatePlay stores one finished playback.
func (r *gormPlayRepository) CreatePlay(play *model.Play) error {
	if err := r.db.Create(play).Error; err != nil {
		return fmt.Errorf("failed to create play record: %w", err)
	}
	return nil
}

// ListPlays returns the play history, newest first.
func (r *gormPlayRepository) ListPlays(limit, offset int) ([]*model.Play, error) {
	var plays []*model.Play
	err := r.db.
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&plays).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list plays: %w", err)
	}
	return plays, nil
}

// CountPlays returns the total number of recorded plays.
func (r *gormPlayRepository) CountPlays() (int64, error) {
	var count int64
	if err := r.db.Model(&model.Play{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return count, nil
}
