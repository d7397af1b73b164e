package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"tubewatch/internal/model"
	"tubewatch/migrations"
)

// Fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// on one handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const playlistColumns = `id, title, author_name, author_uri, interval_minutes, title_filter,
	last_checked_at, thumbnail_url, banner_url, source, created_at`

// ListPlaylists returns playlists ordered by creation, optionally restricted to one source.
func (s *SQLite) ListPlaylists(ctx context.Context, source model.Source) ([]model.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var playlists []model.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, *p)
	}
	return playlists, rows.Err()
}

// GetPlaylist returns a single playlist by its ID.
func (s *SQLite) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("playlist %s: %w", id, ErrNotFound)
	}
	return p, err
}

// InsertPlaylist inserts p and populates CreatedAt.
func (s *SQLite) InsertPlaylist(ctx context.Context, p *model.Playlist, updateOnConflict bool) error {
	if p.IntervalMinutes <= 0 {
		p.IntervalMinutes = model.DefaultIntervalMinutes
	}
	if p.Source == "" {
		p.Source = model.SourceManual
	}
	now := s.now().UTC()

	conflict := `ON CONFLICT (id) DO NOTHING`
	if updateOnConflict {
		conflict = `ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			author_name = excluded.author_name,
			author_uri = excluded.author_uri,
			thumbnail_url = excluded.thumbnail_url,
			banner_url = excluded.banner_url`
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO playlists (`+playlistColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) `+conflict,
		p.ID, p.Title, p.AuthorName, p.AuthorURI, p.IntervalMinutes, p.TitleFilter,
		formatTimePtr(p.LastCheckedAt), p.ThumbnailURL, p.BannerURL, string(p.Source), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert playlist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("playlist %s: %w", p.ID, ErrAlreadyExists)
	}
	p.CreatedAt = now
	return nil
}

// UpdatePlaylist applies the non-nil fields of u.
func (s *SQLite) UpdatePlaylist(ctx context.Context, id string, u PlaylistUpdate) error {
	var sets []string
	var args []any
	if u.IntervalMinutes != nil {
		if *u.IntervalMinutes <= 0 {
			return fmt.Errorf("interval must be positive, got %d", *u.IntervalMinutes)
		}
		sets = append(sets, "interval_minutes = ?")
		args = append(args, *u.IntervalMinutes)
	}
	if u.TitleFilter != nil {
		sets = append(sets, "title_filter = ?")
		args = append(args, *u.TitleFilter)
	}
	if u.LastCheckedAt != nil {
		sets = append(sets, "last_checked_at = ?")
		args = append(args, u.LastCheckedAt.UTC().Format(timeLayout))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE playlists SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update playlist: %w", err)
	}
	return requireAffected(res, "playlist", id)
}

// DeletePlaylist removes a playlist and its videos.
func (s *SQLite) DeletePlaylist(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE playlist_id = ?`, id); err != nil {
		return fmt.Errorf("delete videos: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	if err := requireAffected(res, "playlist", id); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertVideo stores v if its (playlist, video) pair is new.
func (s *SQLite) InsertVideo(ctx context.Context, v *model.Video) (bool, error) {
	if v.State == "" {
		v.State = model.StateMissing
	}
	now := s.now().UTC()
	var published *string
	if !v.PublishedAt.IsZero() {
		p := v.PublishedAt.UTC().Format(timeLayout)
		published = &p
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO videos
		   (playlist_id, video_id, title, published_at, thumbnail_url, link, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.PlaylistID, v.VideoID, v.Title, published, v.ThumbnailURL, v.Link, string(v.State), now.Format(timeLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return true, nil
	}
	v.CreatedAt = now
	return false, nil
}

// ListVideos returns the videos of a playlist, newest first.
func (s *SQLite) ListVideos(ctx context.Context, playlistID string) ([]model.Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT playlist_id, video_id, title, published_at, thumbnail_url, link, state, created_at
		 FROM videos WHERE playlist_id = ? ORDER BY published_at DESC, video_id`, playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var videos []model.Video
	for rows.Next() {
		var v model.Video
		var published sql.NullString
		var state, created string
		if err := rows.Scan(&v.PlaylistID, &v.VideoID, &v.Title, &published, &v.ThumbnailURL, &v.Link, &state, &created); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		if published.Valid {
			v.PublishedAt, _ = time.Parse(timeLayout, published.String)
		}
		v.State = model.VideoState(state)
		v.CreatedAt, _ = time.Parse(timeLayout, created)
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// GetVideoState returns the state of a video. When the video is tracked under
// several playlists a present row wins.
func (s *SQLite) GetVideoState(ctx context.Context, videoID string) (model.VideoState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM videos WHERE video_id = ? ORDER BY (state = 'present') DESC LIMIT 1`, videoID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get video state: %w", err)
	}
	return model.VideoState(state), nil
}

// SetVideoState updates the state of every row of the given video.
func (s *SQLite) SetVideoState(ctx context.Context, videoID string, state model.VideoState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid video state %q", state)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE videos SET state = ? WHERE video_id = ?`, string(state), videoID)
	if err != nil {
		return fmt.Errorf("set video state: %w", err)
	}
	return requireAffected(res, "video", videoID)
}

// ListRules returns all post-processor rules in creation order.
func (s *SQLite) ListRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, target, data, created_at FROM rules ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, target, data, created_at FROM rules WHERE id = ?`, id,
	)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return r, err
}

// CreateRule inserts a rule, assigning a new ID when r.ID is empty.
func (s *SQLite) CreateRule(ctx context.Context, r *model.Rule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Data == "" {
		r.Data = "{}"
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, name, type, target, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, string(r.Type), r.Target, r.Data, now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	r.CreatedAt = now
	return nil
}

// DeleteRule removes a rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireAffected(res, "rule", id)
}

// InsertActivity appends an entry to the activity log and populates its ID and CreatedAt.
func (s *SQLite) InsertActivity(ctx context.Context, a *model.Activity) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (playlist_id, title, url, message, icon, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(a.PlaylistID), nullString(a.Title), nullString(a.URL), a.Message, a.Icon, now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	return nil
}

// ListActivity returns up to limit entries, newest first. A non-positive
// limit returns everything.
func (s *SQLite) ListActivity(ctx context.Context, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, playlist_id, title, url, message, icon, created_at
		 FROM activity ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.Activity
	for rows.Next() {
		var a model.Activity
		var playlistID, title, url sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &playlistID, &title, &url, &a.Message, &a.Icon, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.PlaylistID = playlistID.String
		a.Title = title.String
		a.URL = url.String
		a.CreatedAt, _ = time.Parse(timeLayout, created)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// Settings returns the persisted settings as a string map.
func (s *SQLite) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting stores a setting, replacing any previous value.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPlaylist(row scannable) (*model.Playlist, error) {
	var p model.Playlist
	var source, created string
	var lastChecked sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.AuthorName, &p.AuthorURI, &p.IntervalMinutes, &p.TitleFilter,
		&lastChecked, &p.ThumbnailURL, &p.BannerURL, &source, &created)
	if err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	p.Source = model.Source(source)
	if lastChecked.Valid {
		t, _ := time.Parse(timeLayout, lastChecked.String)
		p.LastCheckedAt = &t
	}
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	return &p, nil
}

func scanRule(row scannable) (*model.Rule, error) {
	var r model.Rule
	var typ, created string
	if err := row.Scan(&r.ID, &r.Name, &typ, &r.Target, &r.Data, &created); err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Type = model.RuleType(typ)
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	return &r, nil
}
