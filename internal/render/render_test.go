package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tubewatch/internal/model"
)

func TestString(t *testing.T) {
	vars := Vars{
		"video.title":    `He said "hi"`,
		"video.video_id": "abc 123",
		"playlist.title": "Talks & more",
	}

	tests := []struct {
		name string
		tmpl string
		esc  Escaper
		want string
	}{
		{
			name: "plain",
			tmpl: "New: [[video.title]] in [[playlist.title]]",
			esc:  Plain,
			want: `New: He said "hi" in Talks & more`,
		},
		{
			name: "nil escaper is plain",
			tmpl: "[[playlist.title]]",
			want: "Talks & more",
		},
		{
			name: "url target",
			tmpl: "https://x/[[video.video_id]]",
			esc:  URL,
			want: "https://x/abc%20123",
		},
		{
			name: "url query value",
			tmpl: "https://x/?p=[[playlist.title]]",
			esc:  URL,
			want: "https://x/?p=Talks%20%26%20more",
		},
		{
			name: "json body",
			tmpl: `{"t":"[[video.title]]"}`,
			esc:  JSON,
			want: `{"t":"He said \"hi\""}`,
		},
		{
			name: "unknown placeholder untouched",
			tmpl: "[[video.nope]] [[other]] [[video.title]]",
			esc:  Plain,
			want: `[[video.nope]] [[other]] He said "hi"`,
		},
		{
			name: "whitespace inside brackets",
			tmpl: "[[ video.video_id ]]",
			esc:  Plain,
			want: "abc 123",
		},
		{
			name: "repeated placeholder",
			tmpl: "[[video.video_id]]/[[video.video_id]]",
			esc:  URL,
			want: "abc%20123/abc%20123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := String(tt.tmpl, vars, tt.esc)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("String() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSONBodyStaysValid(t *testing.T) {
	titles := []string{
		`He said "hi"`,
		`back\slash`,
		"line\nbreak\ttab",
		"<b>html</b> & co",
		"emoji 🎬 and unicode ü",
	}
	for _, title := range titles {
		t.Run(title, func(t *testing.T) {
			body := String(`{"t":"[[video.title]]"}`, Vars{"video.title": title}, JSON)
			var got struct{ T string }
			if err := json.Unmarshal([]byte(body), &got); err != nil {
				t.Fatalf("rendered body %q is not valid JSON: %v", body, err)
			}
			if diff := cmp.Diff(title, got.T); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVarsFor(t *testing.T) {
	v := model.Video{
		VideoID:      "vid1",
		Title:        "Title",
		PublishedAt:  time.Date(2026, 1, 5, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
		ThumbnailURL: "https://img/1.jpg",
	}
	p := model.Playlist{ID: "PL1", Title: "List", AuthorName: "Author"}

	want := Vars{
		"video.title":          "Title",
		"video.thumbnail":      "https://img/1.jpg",
		"video.video_id":       "vid1",
		"video.published_at":   "2026-01-05T09:00:00Z",
		"video.url":            "https://www.youtube.com/watch?v=vid1",
		"playlist.title":       "List",
		"playlist.id":          "PL1",
		"playlist.author_name": "Author",
	}
	if diff := cmp.Diff(want, VarsFor(v, p)); diff != "" {
		t.Errorf("VarsFor mismatch (-want +got):\n%s", diff)
	}
}
