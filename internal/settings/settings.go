// Package settings turns the string-valued runtime settings map kept in the
// store into typed values.
package settings

import (
	"strconv"
	"strings"
)

// Keys of the persisted settings map.
const (
	KeyExcludeShorts    = "exclude_shorts"
	KeyYouTubeAPIKey    = "youtube_api_key"
	KeyYouTubeChannelID = "youtube_channel_id"
)

// Settings are the runtime options consumed by the polling core.
type Settings struct {
	ExcludeShorts    bool
	YouTubeAPIKey    string
	YouTubeChannelID string
}

// SyncEnabled reports whether the external subscription sync has an API key.
func (s Settings) SyncEnabled() bool {
	return s.YouTubeAPIKey != ""
}

// Parse converts the raw settings map. Unknown keys are ignored and
// booleans that fail to parse are treated as false.
func Parse(raw map[string]string) Settings {
	return Settings{
		ExcludeShorts:    parseBool(raw[KeyExcludeShorts]),
		YouTubeAPIKey:    strings.TrimSpace(raw[KeyYouTubeAPIKey]),
		YouTubeChannelID: strings.TrimSpace(raw[KeyYouTubeChannelID]),
	}
}

// Known reports whether key is a setting the application understands.
func Known(key string) bool {
	switch key {
	case KeyExcludeShorts, KeyYouTubeAPIKey, KeyYouTubeChannelID:
		return true
	}
	return false
}

// FormatBool encodes b the way settings booleans are stored.
func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
