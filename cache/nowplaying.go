package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"playlog/model"
)

const (
	nowPlayingKey = "playlog:nowplaying"
	// nowPlayingTTL bounds staleness if an agent dies without sending a stop
	// event.
	nowPlayingTTL = 2 * time.Hour
)

// NowPlaying is the Redis-backed snapshot of the track currently playing.
type NowPlaying struct {
	client *redis.Client
}

// NewNowPlaying wraps the given Redis client.
func NewNowPlaying(client *redis.Client) *NowPlaying {
	return &NowPlaying{client: client}
}

// Set stores the track that just started.
func (n *NowPlaying) Set(ctx context.Context, track model.TrackInfo) error {
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("marshal now playing: %w", err)
	}
	if err := n.client.Set(ctx, nowPlayingKey, data, nowPlayingTTL).Err(); err != nil {
		return fmt.Errorf("set now playing: %w", err)
	}
	return nil
}

// Get returns the current track, or nil when nothing is playing.
func (n *NowPlaying) Get(ctx context.Context) (*model.TrackInfo, error) {
	data, err := n.client.Get(ctx, nowPlayingKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get now playing: %w", err)
	}
	var track model.TrackInfo
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, fmt.Errorf("unmarshal now playing: %w", err)
	}
	return &track, nil
}

// Clear removes the snapshot after a stop event.
func (n *NowPlaying) Clear(ctx context.Context) error {
	if err := n.client.Del(ctx, nowPlayingKey).Err(); err != nil {
		return fmt.Errorf("clear now playing: %w", err)
	}
	return nil
}
