package subsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tubewatch/internal/model"
	"tubewatch/internal/retry"
	"tubewatch/internal/storage"
)

type pollCall struct {
	ID    string
	Alert bool
}

type fakePoller struct {
	mu      sync.Mutex
	jobs    map[string]bool
	polls   []pollCall
	removed []string
}

func newFakePoller(ids ...string) *fakePoller {
	p := &fakePoller{jobs: map[string]bool{}}
	for _, id := range ids {
		p.jobs[id] = true
	}
	return p
}

func (f *fakePoller) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func (f *fakePoller) SchedulePolling(p model.Playlist) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[p.ID] = true
}

func (f *fakePoller) RemovePolling(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	f.removed = append(f.removed, id)
}

func (f *fakePoller) PollPlaylist(_ context.Context, p model.Playlist, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, pollCall{ID: p.ID, Alert: alert})
	return nil
}

func (f *fakePoller) Scheduled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeSource struct {
	subs []Subscription
	err  error
}

func (f *fakeSource) Subscriptions(context.Context) ([]Subscription, error) {
	return f.subs, f.err
}

type factoryRecorder struct {
	mu    sync.Mutex
	calls []string
	src   Source
}

func (r *factoryRecorder) factory(_ context.Context, apiKey, channelID string) (Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, apiKey+"/"+channelID)
	return r.src, nil
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setSettings(t *testing.T, store storage.Storage, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		if err := store.SetSetting(context.Background(), k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
}

func enableSync(t *testing.T, store storage.Storage) {
	t.Helper()
	setSettings(t, store, map[string]string{"youtube_api_key": "key", "youtube_channel_id": "UCme"})
}

func newTestSyncer(store storage.Storage, poller Poller, factory SourceFactory) *Syncer {
	s := New(store, poller, factory, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetRetry(retry.Policy{Attempts: 1})
	return s
}

func insert(t *testing.T, store storage.Storage, p model.Playlist) {
	t.Helper()
	if err := store.InsertPlaylist(context.Background(), &p, false); err != nil {
		t.Fatalf("insert %s: %v", p.ID, err)
	}
}

func ids(t *testing.T, store storage.Storage, source model.Source) []string {
	t.Helper()
	list, err := store.ListPlaylists(context.Background(), source)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var out []string
	for _, p := range list {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out
}

func TestReconciliationRemovesExactlyTheAbsentPlaylist(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	enableSync(t, store)

	for _, id := range []string{"UUaaaaaaaaaa", "UUbbbbbbbbbb", "UUcccccccccc"} {
		insert(t, store, model.Playlist{ID: id, Title: id, Source: model.SourceSubscription})
	}
	insert(t, store, model.Playlist{ID: "PLmanual0001", Source: model.SourceManual})
	if _, err := store.InsertVideo(ctx, &model.Video{PlaylistID: "UUcccccccccc", VideoID: "v1"}); err != nil {
		t.Fatalf("insert video: %v", err)
	}

	poller := newFakePoller("UUaaaaaaaaaa", "UUbbbbbbbbbb", "UUcccccccccc", "PLmanual0001")
	rec := &factoryRecorder{src: &fakeSource{subs: []Subscription{
		{ChannelID: "UCaaaaaaaaaa", Title: "A"},
		{ChannelID: "UCbbbbbbbbbb", Title: "B"},
	}}}
	s := newTestSyncer(store, poller, rec.factory)

	res, err := s.UpdateExternalSubscriptions(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if diff := cmp.Diff(Result{Fetched: 2, Removed: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"key/UCme"}, rec.calls); diff != "" {
		t.Errorf("factory calls mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"UUaaaaaaaaaa", "UUbbbbbbbbbb"}, ids(t, store, model.SourceSubscription)); diff != "" {
		t.Errorf("subscription playlists mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"PLmanual0001"}, ids(t, store, model.SourceManual)); diff != "" {
		t.Errorf("manual playlists mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"UUcccccccccc"}, poller.removed); diff != "" {
		t.Errorf("removed jobs mismatch (-want +got):\n%s", diff)
	}
	if len(poller.polls) != 0 {
		t.Errorf("already scheduled playlists must not be polled, got %v", poller.polls)
	}

	videos, err := store.ListVideos(ctx, "UUcccccccccc")
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(videos) != 0 {
		t.Errorf("expected removed playlist videos to be deleted, got %d", len(videos))
	}

	entries, err := store.ListActivity(ctx, 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	want := []model.Activity{{
		PlaylistID: "UUcccccccccc",
		Title:      "UUcccccccccc",
		Message:    "Playlist removed after unsubscribing",
		Icon:       model.IconDelete,
	}}
	if diff := cmp.Diff(want, entries, cmpopts.IgnoreFields(model.Activity{}, "ID", "CreatedAt")); diff != "" {
		t.Errorf("activity mismatch (-want +got):\n%s", diff)
	}

	res, err = s.UpdateExternalSubscriptions(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if diff := cmp.Diff(Result{Fetched: 2}, res); diff != "" {
		t.Errorf("second sync must be a no-op (-want +got):\n%s", diff)
	}
}

func TestNewSubscriptionIsPolledQuietlyThenScheduled(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	enableSync(t, store)

	poller := newFakePoller()
	rec := &factoryRecorder{src: &fakeSource{subs: []Subscription{{
		ChannelID:    "UCnewchannel1",
		Title:        "New Channel",
		ThumbnailURL: "https://img/thumb.jpg",
		BannerURL:    "https://img/banner.jpg",
	}}}}
	s := newTestSyncer(store, poller, rec.factory)

	res, err := s.UpdateExternalSubscriptions(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if diff := cmp.Diff(Result{Fetched: 1, Added: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]pollCall{{ID: "UUnewchannel1", Alert: false}}, poller.polls); diff != "" {
		t.Errorf("polls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"UUnewchannel1"}, poller.Scheduled()); diff != "" {
		t.Errorf("scheduled mismatch (-want +got):\n%s", diff)
	}

	got, err := store.GetPlaylist(ctx, "UUnewchannel1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.Playlist{
		ID:              "UUnewchannel1",
		Title:           "New Channel",
		AuthorName:      "New Channel",
		AuthorURI:       "https://www.youtube.com/channel/UCnewchannel1",
		IntervalMinutes: model.DefaultIntervalMinutes,
		ThumbnailURL:    "https://img/thumb.jpg",
		BannerURL:       "https://img/banner.jpg",
		Source:          model.SourceSubscription,
	}
	if diff := cmp.Diff(want, *got, cmpopts.IgnoreFields(model.Playlist{}, "CreatedAt", "LastCheckedAt")); diff != "" {
		t.Errorf("playlist mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertKeepsUserSettings(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	enableSync(t, store)

	insert(t, store, model.Playlist{
		ID:              "UUexisting01",
		Title:           "Old title",
		IntervalMinutes: 15,
		TitleFilter:     "^Live",
		Source:          model.SourceSubscription,
	})
	poller := newFakePoller("UUexisting01")
	rec := &factoryRecorder{src: &fakeSource{subs: []Subscription{{ChannelID: "UCexisting01", Title: "New title"}}}}
	s := newTestSyncer(store, poller, rec.factory)

	if _, err := s.UpdateExternalSubscriptions(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got, err := store.GetPlaylist(ctx, "UUexisting01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "New title" || got.IntervalMinutes != 15 || got.TitleFilter != "^Live" {
		t.Errorf("got title=%q interval=%d filter=%q", got.Title, got.IntervalMinutes, got.TitleFilter)
	}
}

func TestExcludeShortsUsesLongFormPlaylist(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	enableSync(t, store)
	setSettings(t, store, map[string]string{"exclude_shorts": "true"})

	poller := newFakePoller()
	rec := &factoryRecorder{src: &fakeSource{subs: []Subscription{
		{ChannelID: "UCshortsfree1", Title: "S"},
		{ChannelID: "notachannel", Title: "skip me"},
	}}}
	s := newTestSyncer(store, poller, rec.factory)

	if _, err := s.UpdateExternalSubscriptions(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if diff := cmp.Diff([]string{"UULFshortsfree1"}, ids(t, store, "")); diff != "" {
		t.Errorf("playlists mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncDisabledOrMisconfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
		wantErr  error
	}{
		{name: "no api key", settings: map[string]string{"youtube_channel_id": "UCme"}},
		{name: "blank api key", settings: map[string]string{"youtube_api_key": "  ", "youtube_channel_id": "UCme"}},
		{name: "no channel", settings: map[string]string{"youtube_api_key": "key"}, wantErr: ErrChannelRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			setSettings(t, store, tt.settings)
			insert(t, store, model.Playlist{ID: "UUkeepme0001", Source: model.SourceSubscription})

			rec := &factoryRecorder{src: &fakeSource{}}
			s := newTestSyncer(store, newFakePoller(), rec.factory)

			res, err := s.UpdateExternalSubscriptions(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if diff := cmp.Diff(Result{}, res); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
			if len(rec.calls) != 0 {
				t.Errorf("source must not be created, got %v", rec.calls)
			}
			if diff := cmp.Diff([]string{"UUkeepme0001"}, ids(t, store, "")); diff != "" {
				t.Errorf("playlists must be untouched (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchErrorRemovesNothing(t *testing.T) {
	store := newTestStore(t)
	enableSync(t, store)
	insert(t, store, model.Playlist{ID: "UUkeepme0001", Source: model.SourceSubscription})

	poller := newFakePoller("UUkeepme0001")
	rec := &factoryRecorder{src: &fakeSource{err: errors.New("quota exceeded")}}
	s := newTestSyncer(store, poller, rec.factory)

	if _, err := s.UpdateExternalSubscriptions(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff([]string{"UUkeepme0001"}, ids(t, store, "")); diff != "" {
		t.Errorf("playlists must be untouched (-want +got):\n%s", diff)
	}
	if len(poller.removed) != 0 {
		t.Errorf("no job may be removed, got %v", poller.removed)
	}
}

func TestPlaylistID(t *testing.T) {
	tests := []struct {
		channel       string
		excludeShorts bool
		want          string
		wantOK        bool
	}{
		{channel: "UCabc123", want: "UUabc123", wantOK: true},
		{channel: "UCabc123", excludeShorts: true, want: "UULFabc123", wantOK: true},
		{channel: "UC", wantOK: false},
		{channel: "PLabc", wantOK: false},
		{channel: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := PlaylistID(tt.channel, tt.excludeShorts)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("PlaylistID(%q, %v) = %q, %v; want %q, %v", tt.channel, tt.excludeShorts, got, ok, tt.want, tt.wantOK)
		}
	}
}
