// Package tracker implements the user-facing operations shared by the
// Telegram bot and the HTTP API.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tubewatch/internal/dispatch"
	"tubewatch/internal/feed"
	"tubewatch/internal/filter"
	"tubewatch/internal/model"
	"tubewatch/internal/settings"
	"tubewatch/internal/storage"
	"tubewatch/internal/subsync"
)

// Errors returned by Service.
var (
	ErrAlreadyAdded = errors.New("playlist already added")
	ErrInvalidInput = errors.New("invalid input")
	ErrSyncDisabled = errors.New("subscription sync is not available")
)

// FeedReader fetches playlist feeds.
type FeedReader interface {
	Fetch(ctx context.Context, playlistID string) (*feed.Feed, error)
}

// Poller manages polling jobs.
type Poller interface {
	SchedulePolling(p model.Playlist)
	RemovePolling(id string)
	PollPlaylist(ctx context.Context, p model.Playlist, alert bool) error
}

// RuleRunner executes post-processor rules.
type RuleRunner interface {
	Run(ctx context.Context, rule model.Rule, subject *dispatch.Subject) (string, error)
}

// Syncer reconciles external subscriptions.
type Syncer interface {
	UpdateExternalSubscriptions(ctx context.Context) (subsync.Result, error)
}

// Service ties the store, scheduler, dispatcher and syncer together.
type Service struct {
	store  storage.Storage
	reader FeedReader
	poller Poller
	runner RuleRunner
	syncer Syncer
	log    *slog.Logger
}

// New creates a Service. syncer may be nil.
func New(store storage.Storage, reader FeedReader, poller Poller, runner RuleRunner, syncer Syncer, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		reader: reader,
		poller: poller,
		runner: runner,
		syncer: syncer,
		log:    log,
	}
}

// PlaylistURL returns the public page of a playlist.
func PlaylistURL(id string) string {
	return "https://www.youtube.com/playlist?list=" + id
}

// AddPlaylist starts tracking a playlist. Videos already in the feed are
// recorded without notification. A zero interval selects the default.
func (s *Service) AddPlaylist(ctx context.Context, id string, intervalMinutes int, titleFilter string) (*model.Playlist, error) {
	if err := feed.ValidateID(id); err != nil {
		return nil, err
	}
	if intervalMinutes < 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidInput)
	}
	if intervalMinutes == 0 {
		intervalMinutes = model.DefaultIntervalMinutes
	}
	if err := filter.ValidateRegex(titleFilter); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.store.GetPlaylist(ctx, id); err == nil {
		return nil, ErrAlreadyAdded
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get playlist: %w", err)
	}

	f, err := s.reader.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	p := model.Playlist{
		ID:              id,
		Title:           f.Playlist.Title,
		AuthorName:      f.Playlist.AuthorName,
		AuthorURI:       f.Playlist.AuthorURI,
		ThumbnailURL:    f.Playlist.ThumbnailURL,
		IntervalMinutes: intervalMinutes,
		TitleFilter:     titleFilter,
		Source:          model.SourceManual,
	}
	if err := s.store.InsertPlaylist(ctx, &p, false); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrAlreadyAdded
		}
		return nil, fmt.Errorf("insert playlist: %w", err)
	}

	if err := s.poller.PollPlaylist(ctx, p, false); err != nil {
		s.log.Warn("initial poll failed", "playlist_id", id, "error", err)
	}
	s.poller.SchedulePolling(p)
	s.addActivity(ctx, &model.Activity{
		PlaylistID: id,
		Title:      p.Title,
		URL:        PlaylistURL(id),
		Message:    "Playlist added",
		Icon:       model.IconAdd,
	})
	s.log.Info("playlist added", "playlist_id", id, "title", p.Title)

	return s.store.GetPlaylist(ctx, id)
}

// UpdatePlaylist changes the interval and/or title filter and reschedules
// the playlist. Nil arguments leave the field unchanged; an empty filter clears it.
func (s *Service) UpdatePlaylist(ctx context.Context, id string, intervalMinutes *int, titleFilter *string) (*model.Playlist, error) {
	if intervalMinutes != nil && *intervalMinutes <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidInput)
	}
	if titleFilter != nil {
		if err := filter.ValidateRegex(*titleFilter); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	err := s.store.UpdatePlaylist(ctx, id, storage.PlaylistUpdate{
		IntervalMinutes: intervalMinutes,
		TitleFilter:     titleFilter,
	})
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	s.poller.SchedulePolling(*p)
	return p, nil
}

// RemovePlaylist stops tracking a playlist and deletes its videos.
func (s *Service) RemovePlaylist(ctx context.Context, id string) error {
	p, err := s.store.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	s.poller.RemovePolling(id)
	if err := s.store.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	s.addActivity(ctx, &model.Activity{
		PlaylistID: id,
		Title:      p.Title,
		Message:    "Playlist removed",
		Icon:       model.IconDelete,
	})
	s.log.Info("playlist removed", "playlist_id", id)
	return nil
}

// CheckNow polls a playlist immediately, ignoring its interval.
func (s *Service) CheckNow(ctx context.Context, id string) error {
	p, err := s.store.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	p.LastCheckedAt = nil
	return s.poller.PollPlaylist(ctx, *p, true)
}

// ListPlaylists returns every tracked playlist.
func (s *Service) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	return s.store.ListPlaylists(ctx, "")
}

// Playlist returns one tracked playlist.
func (s *Service) Playlist(ctx context.Context, id string) (*model.Playlist, error) {
	return s.store.GetPlaylist(ctx, id)
}

// Videos returns the recorded videos of a playlist, newest first.
func (s *Service) Videos(ctx context.Context, id string) ([]model.Video, error) {
	if _, err := s.store.GetPlaylist(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListVideos(ctx, id)
}

// Activity returns the latest activity entries.
func (s *Service) Activity(ctx context.Context, limit int) ([]model.Activity, error) {
	return s.store.ListActivity(ctx, limit)
}

// SetVideoState records a state reported by an external downloader.
func (s *Service) SetVideoState(ctx context.Context, videoID string, state model.VideoState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidInput, state)
	}
	return s.store.SetVideoState(ctx, videoID, state)
}

// CreateRule validates and stores a post-processor rule.
func (s *Service) CreateRule(ctx context.Context, r model.Rule) (*model.Rule, error) {
	r.ID = ""
	if err := dispatch.Validate(r); err != nil {
		return nil, err
	}
	if err := s.store.CreateRule(ctx, &r); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	return &r, nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}

// ListRules returns every rule.
func (s *Service) ListRules(ctx context.Context) ([]model.Rule, error) {
	return s.store.ListRules(ctx)
}

// TestRule runs a stored rule against sample values.
func (s *Service) TestRule(ctx context.Context, id string) (string, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return "", err
	}
	return s.runner.Run(ctx, *r, nil)
}

// TestDraftRule runs an unsaved rule against sample values.
func (s *Service) TestDraftRule(ctx context.Context, r model.Rule) (string, error) {
	if err := dispatch.Validate(r); err != nil {
		return "", err
	}
	return s.runner.Run(ctx, r, nil)
}

// RefreshSubscriptions runs the subscription sync now.
func (s *Service) RefreshSubscriptions(ctx context.Context) (subsync.Result, error) {
	if s.syncer == nil {
		return subsync.Result{}, ErrSyncDisabled
	}
	return s.syncer.UpdateExternalSubscriptions(ctx)
}

// Settings returns the typed runtime settings.
func (s *Service) Settings(ctx context.Context) (settings.Settings, error) {
	raw, err := s.store.Settings(ctx)
	if err != nil {
		return settings.Settings{}, err
	}
	return settings.Parse(raw), nil
}

// SetSetting stores a runtime setting. Boolean settings are normalised.
func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	if !settings.Known(key) {
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidInput, key)
	}
	if key == settings.KeyExcludeShorts {
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", ErrInvalidInput, key)
		}
		value = settings.FormatBool(b)
	}
	return s.store.SetSetting(ctx, key, value)
}

func (s *Service) addActivity(ctx context.Context, a *model.Activity) {
	if err := s.store.InsertActivity(ctx, a); err != nil {
		s.log.Error("insert activity", "playlist_id", a.PlaylistID, "error", err)
	}
}
