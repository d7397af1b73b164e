// Package scheduler polls tracked playlists, records new videos and runs the
// configured post-processors for them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"tubewatch/internal/dispatch"
	"tubewatch/internal/feed"
	"tubewatch/internal/filter"
	"tubewatch/internal/model"
	"tubewatch/internal/settings"
	"tubewatch/internal/storage"
)

// tickSlack absorbs ticker jitter so a tick arriving marginally early is not
// skipped by the interval guard. Direct polls get no slack.
const tickSlack = 10 * time.Second

// FeedReader fetches playlist feeds.
type FeedReader interface {
	Fetch(ctx context.Context, playlistID string) (*feed.Feed, error)
}

// RuleRunner executes a post-processor rule for a video.
type RuleRunner interface {
	Run(ctx context.Context, rule model.Rule, subject *dispatch.Subject) (string, error)
}

// Scheduler runs one recurring poll per tracked playlist.
type Scheduler struct {
	store  storage.Storage
	reader FeedReader
	runner RuleRunner
	log    *slog.Logger
	clock  clockwork.Clock
	state  *State

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithState shares an existing job set.
func WithState(st *State) Option {
	return func(s *Scheduler) { s.state = st }
}

// New creates a Scheduler. Jobs may be scheduled right away; Stop tears them down.
func New(store storage.Storage, reader FeedReader, runner RuleRunner, log *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		reader: reader,
		runner: runner,
		log:    log,
		clock:  clockwork.NewRealClock(),
		state:  NewState(),
	}
	for _, o := range opts {
		o(s)
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start schedules every stored playlist.
func (s *Scheduler) Start(ctx context.Context) error {
	playlists, err := s.store.ListPlaylists(ctx, "")
	if err != nil {
		return fmt.Errorf("list playlists: %w", err)
	}
	for _, p := range playlists {
		s.SchedulePolling(p)
	}
	s.log.Info("scheduler started", "playlists", len(playlists))
	return nil
}

// Stop cancels every job and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.state.removeAll()
	s.wg.Wait()
}

// SchedulePolling installs a recurring poll for p, replacing any existing job
// for the same playlist.
func (s *Scheduler) SchedulePolling(p model.Playlist) {
	if s.base.Err() != nil {
		return
	}
	interval := p.Interval()
	if interval <= 0 {
		interval = time.Duration(model.DefaultIntervalMinutes) * time.Minute
	}

	ctx, cancel := context.WithCancel(s.base)
	j := &job{
		JobInfo: JobInfo{PlaylistID: p.ID, Interval: interval, TitleFilter: p.TitleFilter},
		cancel:  cancel,
	}
	ticker := s.clock.NewTicker(interval)
	replaced := s.state.replace(j)

	s.wg.Add(1)
	go s.loop(ctx, j.JobInfo, ticker)

	if replaced {
		s.log.Info("rescheduled polling", "playlist_id", p.ID, "interval", interval)
	} else {
		s.log.Info("scheduled polling", "playlist_id", p.ID, "interval", interval)
	}
}

// RemovePolling stops the job of a playlist. Removing an unknown playlist is a no-op.
func (s *Scheduler) RemovePolling(id string) {
	if s.state.remove(id) {
		s.log.Info("removed polling", "playlist_id", id)
	}
}

// Has reports whether a playlist has an active job.
func (s *Scheduler) Has(id string) bool {
	return s.state.Has(id)
}

// Jobs lists the active jobs.
func (s *Scheduler) Jobs() []JobInfo {
	return s.state.Jobs()
}

func (s *Scheduler) loop(ctx context.Context, info JobInfo, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			s.tick(info)
		}
	}
}

// tick runs on the base context so that removing a job lets an in-flight
// poll finish.
func (s *Scheduler) tick(info JobInfo) {
	p, err := s.store.GetPlaylist(s.base, info.PlaylistID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("playlist gone, skipping tick", "playlist_id", info.PlaylistID)
		return
	}
	if err != nil {
		s.log.Error("load playlist", "playlist_id", info.PlaylistID, "error", err)
		return
	}
	p.IntervalMinutes = int(info.Interval / time.Minute)
	p.TitleFilter = info.TitleFilter

	if err := s.poll(s.base, *p, true, tickSlack); err != nil {
		s.log.Error("poll playlist", "playlist_id", p.ID, "error", err)
	}
}

// PollPlaylist checks the feed of p once. Videos seen for the first time are
// stored, and when alert is set those passing the filters are announced in
// the activity log and handed to every rule. A nil LastCheckedAt bypasses
// the interval guard.
func (s *Scheduler) PollPlaylist(ctx context.Context, p model.Playlist, alert bool) error {
	return s.poll(ctx, p, alert, 0)
}

func (s *Scheduler) poll(ctx context.Context, p model.Playlist, alert bool, slack time.Duration) error {
	start := s.clock.Now()
	if p.LastCheckedAt != nil && start.Sub(*p.LastCheckedAt) < p.Interval()-slack {
		s.log.Debug("interval not elapsed, skipping", "playlist_id", p.ID)
		return nil
	}

	s.log.Debug("checking playlist", "playlist_id", p.ID, "title", p.Title)

	f, err := s.reader.Fetch(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}

	var cfg settings.Settings
	if alert {
		raw, err := s.store.Settings(ctx)
		if err != nil {
			s.log.Warn("load settings", "error", err)
		}
		cfg = settings.Parse(raw)
	}

	var (
		rules       []model.Rule
		rulesLoaded bool
		found       int
	)
	for _, it := range f.Items {
		v := model.Video{
			PlaylistID:   p.ID,
			VideoID:      it.ID,
			Title:        it.Title,
			PublishedAt:  it.PublishedAt,
			ThumbnailURL: it.Thumbnail,
			Link:         it.Link,
		}
		existed, err := s.store.InsertVideo(ctx, &v)
		if err != nil {
			s.log.Error("insert video", "playlist_id", p.ID, "video_id", it.ID, "error", err)
			continue
		}
		if existed || !alert {
			continue
		}

		fr := filter.Rules{TitleFilter: p.TitleFilter, ExcludeShorts: cfg.ExcludeShorts}
		if !filter.Match(filter.Item{Title: v.Title, Link: v.Link}, fr) {
			s.log.Debug("video filtered", "playlist_id", p.ID, "video_id", v.VideoID, "title", v.Title)
			continue
		}
		found++

		if !rulesLoaded {
			rulesLoaded = true
			if rules, err = s.store.ListRules(ctx); err != nil {
				s.log.Error("list rules", "error", err)
			}
		}
		s.announce(ctx, p, v, rules)
	}

	if found > 0 {
		s.log.Info("new videos found", "playlist_id", p.ID, "title", p.Title, "count", found)
	}

	checked := start.UTC()
	if err := s.store.UpdatePlaylist(ctx, p.ID, storage.PlaylistUpdate{LastCheckedAt: &checked}); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("update last check: %w", err)
	}
	return nil
}

func (s *Scheduler) announce(ctx context.Context, p model.Playlist, v model.Video, rules []model.Rule) {
	s.addActivity(ctx, &model.Activity{
		PlaylistID: p.ID,
		Title:      v.Title,
		URL:        v.Link,
		Message:    "New video found",
		Icon:       model.IconVideo,
	})

	subject := &dispatch.Subject{Video: v, Playlist: p}
	for _, r := range rules {
		if _, err := s.runner.Run(ctx, r, subject); err != nil {
			s.log.Warn("post-processor failed",
				"rule", r.Name, "playlist_id", p.ID, "video_id", v.VideoID, "error", err)
			continue
		}
		s.addActivity(ctx, &model.Activity{
			PlaylistID: p.ID,
			Title:      v.Title,
			URL:        v.Link,
			Message:    fmt.Sprintf("Post-processor %q triggered", r.Name),
			Icon:       model.IconProcessor,
		})
	}
}

func (s *Scheduler) addActivity(ctx context.Context, a *model.Activity) {
	if err := s.store.InsertActivity(ctx, a); err != nil {
		s.log.Error("insert activity", "playlist_id", a.PlaylistID, "error", err)
	}
}
