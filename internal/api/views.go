package api

import (
	"encoding/json"
	"time"

	"tubewatch/internal/model"
	"tubewatch/internal/settings"
)

type errorView struct {
	Error string `json:"error"`
}

type playlistView struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	AuthorName      string  `json:"author_name"`
	AuthorURI       string  `json:"author_uri"`
	IntervalMinutes int     `json:"interval_minutes"`
	TitleFilter     string  `json:"title_filter"`
	LastCheckedAt   *string `json:"last_checked_at"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	BannerURL       string  `json:"banner_url"`
	Source          string  `json:"source"`
	CreatedAt       string  `json:"created_at"`
}

type videoView struct {
	PlaylistID   string `json:"playlist_id"`
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	PublishedAt  string `json:"published_at"`
	ThumbnailURL string `json:"thumbnail_url"`
	Link         string `json:"link"`
	State        string `json:"state"`
	CreatedAt    string `json:"created_at"`
}

type activityView struct {
	ID         int64  `json:"id"`
	PlaylistID string `json:"playlist_id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Message    string `json:"message"`
	Icon       string `json:"icon"`
	CreatedAt  string `json:"created_at"`
}

type ruleView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Target    string          `json:"target"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"created_at"`
}

type settingsView struct {
	ExcludeShorts    bool   `json:"exclude_shorts"`
	YouTubeAPIKeySet bool   `json:"youtube_api_key_set"`
	YouTubeChannelID string `json:"youtube_channel_id"`
}

type syncResultView struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

type testResultView struct {
	Output string `json:"output"`
}

type addPlaylistRequest struct {
	ID              string `json:"id"`
	IntervalMinutes int    `json:"interval_minutes"`
	TitleFilter     string `json:"title_filter"`
}

type updatePlaylistRequest struct {
	IntervalMinutes *int    `json:"interval_minutes"`
	TitleFilter     *string `json:"title_filter"`
}

type videoStateRequest struct {
	State string `json:"state"`
}

type settingRequest struct {
	Value string `json:"value"`
}

type ruleRequest struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data"`
}

func (req ruleRequest) rule() model.Rule {
	return model.Rule{
		Name:   req.Name,
		Type:   model.RuleType(req.Type),
		Target: req.Target,
		Data:   string(req.Data),
	}
}

func playlistFrom(p model.Playlist) playlistView {
	return playlistView{
		ID:              p.ID,
		Title:           p.Title,
		AuthorName:      p.AuthorName,
		AuthorURI:       p.AuthorURI,
		IntervalMinutes: p.IntervalMinutes,
		TitleFilter:     p.TitleFilter,
		LastCheckedAt:   isoformat(p.LastCheckedAt),
		ThumbnailURL:    p.ThumbnailURL,
		BannerURL:       p.BannerURL,
		Source:          string(p.Source),
		CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func videoFrom(v model.Video) videoView {
	return videoView{
		PlaylistID:   v.PlaylistID,
		VideoID:      v.VideoID,
		Title:        v.Title,
		PublishedAt:  v.PublishedAt.UTC().Format(time.RFC3339),
		ThumbnailURL: v.ThumbnailURL,
		Link:         v.Link,
		State:        string(v.State),
		CreatedAt:    v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func activityFrom(a model.Activity) activityView {
	return activityView{
		ID:         a.ID,
		PlaylistID: a.PlaylistID,
		Title:      a.Title,
		URL:        a.URL,
		Message:    a.Message,
		Icon:       a.Icon,
		CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ruleFrom(r model.Rule) ruleView {
	data := json.RawMessage(r.Data)
	if !json.Valid(data) {
		data = json.RawMessage("{}")
	}
	return ruleView{
		ID:        r.ID,
		Name:      r.Name,
		Type:      string(r.Type),
		Target:    r.Target,
		Data:      data,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func settingsFrom(s settings.Settings) settingsView {
	return settingsView{
		ExcludeShorts:    s.ExcludeShorts,
		YouTubeAPIKeySet: s.SyncEnabled(),
		YouTubeChannelID: s.YouTubeChannelID,
	}
}

func fromMany[T, V any](elems []T, from func(T) V) []V {
	out := make([]V, len(elems))
	for i, e := range elems {
		out[i] = from(e)
	}
	return out
}

func isoformat(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
