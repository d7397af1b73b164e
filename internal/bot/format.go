package bot

import (
	"fmt"
	"strings"

	"tubewatch/internal/model"
	"tubewatch/internal/settings"
	"tubewatch/internal/subsync"
	"tubewatch/internal/tracker"
)

const recentVideos = 5

// FormatPlaylistList formats the tracked playlists for display.
func FormatPlaylistList(playlists []model.Playlist) string {
	if len(playlists) == 0 {
		return "No playlists tracked yet. Use /add <playlist_id> to add one."
	}
	var b strings.Builder
	b.WriteString("Tracked playlists:\n")
	for _, p := range playlists {
		fmt.Fprintf(&b, "\n%s\n   %s  (every %d min) [%s]\n", p.Title, p.ID, p.IntervalMinutes, p.Source)
		if p.TitleFilter != "" {
			fmt.Fprintf(&b, "   filter: %s\n", p.TitleFilter)
		}
	}
	return b.String()
}

// FormatPlaylistInfo formats detailed information about a single playlist and
// its most recent videos.
func FormatPlaylistInfo(p *model.Playlist, videos []model.Video) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]\n", p.Title, p.Source)
	if p.AuthorName != "" {
		fmt.Fprintf(&b, "Author: %s\n", p.AuthorName)
	}
	fmt.Fprintf(&b, "URL: %s\n", tracker.PlaylistURL(p.ID))
	fmt.Fprintf(&b, "Interval: every %d min\n", p.IntervalMinutes)
	if p.TitleFilter != "" {
		fmt.Fprintf(&b, "Title filter: %s\n", p.TitleFilter)
	}
	if p.LastCheckedAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", p.LastCheckedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}

	if len(videos) == 0 {
		b.WriteString("\nNo videos recorded yet.")
		return b.String()
	}
	fmt.Fprintf(&b, "\nVideos: %d recorded\n", len(videos))
	for i, v := range videos {
		if i == recentVideos {
			break
		}
		fmt.Fprintf(&b, "  %s (%s)\n", v.Title, v.State)
	}
	return b.String()
}

// FormatRuleList formats the post-processor rules.
func FormatRuleList(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No post-processor rules configured."
	}
	var b strings.Builder
	b.WriteString("Post-processor rules:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "\n%s [%s]\n   id: %s\n   target: %s\n", r.Name, r.Type, r.ID, r.Target)
	}
	return b.String()
}

// FormatSyncResult summarises a subscription sync.
func FormatSyncResult(res subsync.Result) string {
	return fmt.Sprintf("Subscriptions synced: %d fetched, %d added, %d removed.", res.Fetched, res.Added, res.Removed)
}

// FormatSettings formats the runtime settings. The API key is masked.
func FormatSettings(s settings.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exclude shorts: %s\n", onOff(s.ExcludeShorts))
	if s.SyncEnabled() {
		b.WriteString("YouTube API key: set\n")
	} else {
		b.WriteString("YouTube API key: not set\n")
	}
	if s.YouTubeChannelID != "" {
		fmt.Fprintf(&b, "Channel: %s\n", s.YouTubeChannelID)
	}
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
