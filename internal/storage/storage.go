// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"tubewatch/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// PlaylistUpdate lists the mutable playlist fields. Nil fields are left unchanged.
type PlaylistUpdate struct {
	IntervalMinutes *int
	TitleFilter     *string
	LastCheckedAt   *time.Time
}

// Storage is the interface for all persistence operations.
type Storage interface {
	// ListPlaylists returns all playlists, or only those of the given source
	// when source is non-empty.
	ListPlaylists(ctx context.Context, source model.Source) ([]model.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*model.Playlist, error)
	// InsertPlaylist stores p. On an ID conflict it returns ErrAlreadyExists,
	// unless updateOnConflict is set, in which case the descriptive fields
	// (title, author, artwork) are refreshed.
	InsertPlaylist(ctx context.Context, p *model.Playlist, updateOnConflict bool) error
	UpdatePlaylist(ctx context.Context, id string, u PlaylistUpdate) error
	// DeletePlaylist removes the playlist and all of its videos.
	DeletePlaylist(ctx context.Context, id string) error

	// InsertVideo stores v unless (PlaylistID, VideoID) already exists and
	// reports whether it did.
	InsertVideo(ctx context.Context, v *model.Video) (alreadyExisted bool, err error)
	ListVideos(ctx context.Context, playlistID string) ([]model.Video, error)
	GetVideoState(ctx context.Context, videoID string) (model.VideoState, error)
	SetVideoState(ctx context.Context, videoID string, state model.VideoState) error

	ListRules(ctx context.Context) ([]model.Rule, error)
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	CreateRule(ctx context.Context, r *model.Rule) error
	DeleteRule(ctx context.Context, id string) error

	InsertActivity(ctx context.Context, a *model.Activity) error
	ListActivity(ctx context.Context, limit int) ([]model.Activity, error)

	Settings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
