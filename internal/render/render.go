// Package render substitutes [[video.*]] and [[playlist.*]] placeholders in
// post-processor templates.
package render

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"tubewatch/internal/model"
)

var placeholder = regexp.MustCompile(`\[\[\s*([a-z_]+\.[a-z_]+)\s*\]\]`)

// Vars maps a placeholder name such as "video.title" to its value.
type Vars map[string]string

// Escaper transforms a value before it is inserted into a template.
type Escaper func(string) string

// Plain inserts values unchanged.
func Plain(s string) string { return s }

// URL percent-encodes values for use anywhere inside a URL.
func URL(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// JSON escapes values for use inside a JSON string literal.
func JSON(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	out := strings.TrimSuffix(buf.String(), "\n")
	return out[1 : len(out)-1]
}

// String replaces every known placeholder in tmpl. Unknown placeholders are
// left as they are.
func String(tmpl string, vars Vars, esc Escaper) string {
	if esc == nil {
		esc = Plain
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			return m
		}
		return esc(v)
	})
}

// VarsFor builds the substitution variables of a video in a playlist.
func VarsFor(v model.Video, p model.Playlist) Vars {
	link := v.Link
	if link == "" && v.VideoID != "" {
		link = "https://www.youtube.com/watch?v=" + v.VideoID
	}
	var published string
	if !v.PublishedAt.IsZero() {
		published = v.PublishedAt.UTC().Format(time.RFC3339)
	}
	return Vars{
		"video.title":          v.Title,
		"video.thumbnail":      v.ThumbnailURL,
		"video.video_id":       v.VideoID,
		"video.published_at":   published,
		"video.url":            link,
		"playlist.title":       p.Title,
		"playlist.id":          p.ID,
		"playlist.author_name": p.AuthorName,
	}
}

// Sample returns example values used when testing a rule without a real video.
func Sample() (model.Video, model.Playlist) {
	v := model.Video{
		PlaylistID:   "UUexample00000000000000",
		VideoID:      "dQw4w9WgXcQ",
		Title:        "Example video",
		PublishedAt:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		ThumbnailURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg",
		Link:         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		State:        model.StateMissing,
	}
	p := model.Playlist{
		ID:         "UUexample00000000000000",
		Title:      "Example playlist",
		AuthorName: "Example channel",
	}
	return v, p
}
