// Package subsync mirrors the YouTube subscriptions of a channel into the set
// of tracked playlists.
package subsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tubewatch/internal/model"
	"tubewatch/internal/retry"
	"tubewatch/internal/settings"
	"tubewatch/internal/storage"
)

// ErrChannelRequired is returned when an API key is set but no channel is.
var ErrChannelRequired = errors.New("youtube_channel_id is not set")

// Subscription is one channel the account is subscribed to.
type Subscription struct {
	ChannelID    string
	Title        string
	ThumbnailURL string
	BannerURL    string
}

// Source lists the current subscriptions.
type Source interface {
	Subscriptions(ctx context.Context) ([]Subscription, error)
}

// SourceFactory builds a Source from the persisted credentials.
type SourceFactory func(ctx context.Context, apiKey, channelID string) (Source, error)

// Poller is the part of the scheduler the syncer drives.
type Poller interface {
	Has(id string) bool
	SchedulePolling(p model.Playlist)
	RemovePolling(id string)
	PollPlaylist(ctx context.Context, p model.Playlist, alert bool) error
}

// Result summarises one reconciliation.
type Result struct {
	Fetched int
	Added   int
	Removed int
}

// Syncer reconciles subscriptions with tracked playlists.
type Syncer struct {
	store     storage.Storage
	poller    Poller
	newSource SourceFactory
	log       *slog.Logger
	policy    retry.Policy

	mu sync.Mutex
}

// New creates a Syncer.
func New(store storage.Storage, poller Poller, factory SourceFactory, log *slog.Logger) *Syncer {
	return &Syncer{
		store:     store,
		poller:    poller,
		newSource: factory,
		log:       log,
		policy:    retry.DefaultPolicy,
	}
}

// SetRetry sets the retry policy used for fetching subscriptions.
func (s *Syncer) SetRetry(p retry.Policy) {
	s.policy = p
}

// PlaylistID maps a channel ID to the ID of its uploads playlist. With
// excludeShorts the long-form uploads playlist is used instead.
func PlaylistID(channelID string, excludeShorts bool) (string, bool) {
	rest, ok := strings.CutPrefix(channelID, "UC")
	if !ok || rest == "" {
		return "", false
	}
	if excludeShorts {
		return "UULF" + rest, true
	}
	return "UU" + rest, true
}

// UpdateExternalSubscriptions fetches the subscription list and makes the
// tracked subscription playlists match it. It does nothing when no API key is
// configured. Concurrent calls are serialised.
func (s *Syncer) UpdateExternalSubscriptions(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	raw, err := s.store.Settings(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	cfg := settings.Parse(raw)
	if !cfg.SyncEnabled() {
		s.log.Debug("subscription sync disabled")
		return res, nil
	}
	if cfg.YouTubeChannelID == "" {
		return res, ErrChannelRequired
	}

	src, err := s.newSource(ctx, cfg.YouTubeAPIKey, cfg.YouTubeChannelID)
	if err != nil {
		return res, fmt.Errorf("create subscription source: %w", err)
	}

	var subs []Subscription
	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		subs, err = src.Subscriptions(ctx)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("fetch subscriptions: %w", err)
	}
	res.Fetched = len(subs)

	wanted := make(map[string]bool, len(subs))
	for _, sub := range subs {
		id, ok := PlaylistID(sub.ChannelID, cfg.ExcludeShorts)
		if !ok {
			s.log.Warn("skipping subscription with unexpected channel id", "channel_id", sub.ChannelID)
			continue
		}
		wanted[id] = true
		if s.upsert(ctx, id, sub) {
			res.Added++
		}
	}

	tracked, err := s.store.ListPlaylists(ctx, model.SourceSubscription)
	if err != nil {
		return res, fmt.Errorf("list subscription playlists: %w", err)
	}
	for _, p := range tracked {
		if wanted[p.ID] {
			continue
		}
		if s.remove(ctx, p) {
			res.Removed++
		}
	}

	s.log.Info("subscriptions synced", "fetched", res.Fetched, "added", res.Added, "removed", res.Removed)
	return res, nil
}

// upsert stores the playlist of a subscription and starts polling it if it
// is not polled yet. It reports whether polling was started.
func (s *Syncer) upsert(ctx context.Context, id string, sub Subscription) bool {
	p := model.Playlist{
		ID:           id,
		Title:        sub.Title,
		AuthorName:   sub.Title,
		AuthorURI:    "https://www.youtube.com/channel/" + sub.ChannelID,
		ThumbnailURL: sub.ThumbnailURL,
		BannerURL:    sub.BannerURL,
		Source:       model.SourceSubscription,
	}
	if err := s.store.InsertPlaylist(ctx, &p, true); err != nil {
		s.log.Error("upsert subscription playlist", "playlist_id", id, "error", err)
		return false
	}
	if s.poller.Has(id) {
		return false
	}

	stored, err := s.store.GetPlaylist(ctx, id)
	if err != nil {
		s.log.Error("load subscription playlist", "playlist_id", id, "error", err)
		return false
	}
	if err := s.poller.PollPlaylist(ctx, *stored, false); err != nil {
		s.log.Warn("initial poll failed", "playlist_id", id, "error", err)
	}
	s.poller.SchedulePolling(*stored)
	return true
}

func (s *Syncer) remove(ctx context.Context, p model.Playlist) bool {
	s.poller.RemovePolling(p.ID)
	if err := s.store.DeletePlaylist(ctx, p.ID); err != nil {
		s.log.Error("delete unsubscribed playlist", "playlist_id", p.ID, "error", err)
		return false
	}
	a := &model.Activity{
		PlaylistID: p.ID,
		Title:      p.Title,
		Message:    "Playlist removed after unsubscribing",
		Icon:       model.IconDelete,
	}
	if err := s.store.InsertActivity(ctx, a); err != nil {
		s.log.Error("insert activity", "playlist_id", p.ID, "error", err)
	}
	s.log.Info("removed unsubscribed playlist", "playlist_id", p.ID, "title", p.Title)
	return true
}
