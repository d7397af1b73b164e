// Package model defines the domain types used across the application.
package model

import "time"

// Source records how a playlist came to be tracked.
type Source string

// Supported playlist sources.
const (
	SourceManual       Source = "manual"
	SourceSubscription Source = "subscription"
)

// DefaultIntervalMinutes is applied when a playlist is added without an interval.
const DefaultIntervalMinutes = 60

// Playlist is a tracked YouTube feed, keyed by its external playlist ID.
type Playlist struct {
	ID              string
	Title           string
	AuthorName      string
	AuthorURI       string
	IntervalMinutes int
	TitleFilter     string
	LastCheckedAt   *time.Time
	ThumbnailURL    string
	BannerURL       string
	Source          Source
	CreatedAt       time.Time
}

// Interval returns the polling interval as a duration.
func (p Playlist) Interval() time.Duration {
	return time.Duration(p.IntervalMinutes) * time.Minute
}

// VideoState is the processing state of a video.
type VideoState string

// Video states. A video starts as missing and only leaves it through a
// post-processor outcome.
const (
	StateMissing     VideoState = "missing"
	StatePending     VideoState = "pending"
	StateDownloading VideoState = "downloading"
	StatePresent     VideoState = "present"
	StateError       VideoState = "error"
)

// Valid reports whether s is a known state.
func (s VideoState) Valid() bool {
	switch s {
	case StateMissing, StatePending, StateDownloading, StatePresent, StateError:
		return true
	}
	return false
}

// Video is a feed entry observed under a playlist. The pair
// (PlaylistID, VideoID) is unique; the same video may appear in several playlists.
type Video struct {
	PlaylistID   string
	VideoID      string
	Title        string
	PublishedAt  time.Time
	ThumbnailURL string
	Link         string
	State        VideoState
	CreatedAt    time.Time
}

// Activity icons.
const (
	IconVideo     = "video"
	IconProcessor = "processor"
	IconAdd       = "add"
	IconDelete    = "delete"
)

// Activity is an immutable entry of the activity log.
type Activity struct {
	ID         int64
	PlaylistID string
	Title      string
	URL        string
	Message    string
	Icon       string
	CreatedAt  time.Time
}

// RuleType selects how a post-processor rule is executed.
type RuleType string

// Supported rule types.
const (
	RuleWebhook  RuleType = "webhook"
	RuleProcess  RuleType = "process"
	RuleTelegram RuleType = "telegram"
)

// Rule is a user-configured post-processor run once per new video.
// Data holds the JSON-encoded, type-specific template.
type Rule struct {
	ID        string
	Name      string
	Type      RuleType
	Target    string
	Data      string
	CreatedAt time.Time
}
