package settings

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]string
		want Settings
	}{
		{
			name: "empty map",
			raw:  nil,
			want: Settings{},
		},
		{
			name: "exclude shorts true",
			raw:  map[string]string{KeyExcludeShorts: "true"},
			want: Settings{ExcludeShorts: true},
		},
		{
			name: "exclude shorts false",
			raw:  map[string]string{KeyExcludeShorts: "false"},
			want: Settings{},
		},
		{
			name: "garbage boolean is false",
			raw:  map[string]string{KeyExcludeShorts: "yes please"},
			want: Settings{},
		},
		{
			name: "api key and channel trimmed",
			raw: map[string]string{
				KeyYouTubeAPIKey:    " key ",
				KeyYouTubeChannelID: "UCabc\n",
				"unrelated":         "x",
			},
			want: Settings{YouTubeAPIKey: "key", YouTubeChannelID: "UCabc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSyncEnabled(t *testing.T) {
	if (Settings{}).SyncEnabled() {
		t.Error("expected sync disabled without api key")
	}
	if !(Settings{YouTubeAPIKey: "k"}).SyncEnabled() {
		t.Error("expected sync enabled with api key")
	}
}
