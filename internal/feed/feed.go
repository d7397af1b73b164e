// Package feed downloads and parses YouTube playlist feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"tubewatch/internal/retry"
)

// DefaultBaseURL is the public YouTube feed endpoint.
const DefaultBaseURL = "https://www.youtube.com/feeds/videos.xml"

const maxBodySize = 5 * 1024 * 1024

// Errors returned by Fetch and ValidateID.
var (
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrInvalidID        = errors.New("invalid playlist id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,64}$`)

// ValidateID checks that id looks like a YouTube playlist identifier.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Playlist describes the feed owner as reported by the feed itself.
type Playlist struct {
	ID           string
	Title        string
	AuthorName   string
	AuthorURI    string
	ThumbnailURL string
}

// Item is a single video entry of a feed.
type Item struct {
	ID          string
	Title       string
	PublishedAt time.Time
	Thumbnail   string
	Link        string
}

// Feed is a parsed playlist feed. Items keep the feed order.
type Feed struct {
	Playlist Playlist
	Items    []Item
}

// Reader fetches playlist feeds.
type Reader struct {
	client  HTTPClient
	baseURL string
	policy  retry.Policy
}

// Option configures a Reader.
type Option func(*Reader)

// WithBaseURL overrides the feed endpoint.
func WithBaseURL(u string) Option {
	return func(r *Reader) { r.baseURL = u }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(p retry.Policy) Option {
	return func(r *Reader) { r.policy = p }
}

// New creates a Reader with the given HTTP client.
func New(client HTTPClient, opts ...Option) *Reader {
	r := &Reader{
		client:  client,
		baseURL: DefaultBaseURL,
		policy:  retry.DefaultPolicy,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// URL returns the feed URL of a playlist.
func (r *Reader) URL(playlistID string) string {
	return r.baseURL + "?playlist_id=" + url.QueryEscape(playlistID)
}

// Fetch downloads and parses the feed of a playlist. Network failures and
// server errors are retried; a missing playlist or an unparsable body is not.
func (r *Reader) Fetch(ctx context.Context, playlistID string) (*Feed, error) {
	if err := ValidateID(playlistID); err != nil {
		return nil, err
	}

	var parsed *gofeed.Feed
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		f, err := r.fetchOnce(ctx, playlistID)
		if err != nil {
			return err
		}
		parsed = f
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %s: %w", playlistID, err)
	}
	return convert(playlistID, parsed), nil
}

func (r *Reader) fetchOnce(ctx context.Context, playlistID string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(playlistID), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "tubewatch/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(ErrPlaylistNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	f, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse feed: %w", err))
	}
	return f, nil
}

func convert(playlistID string, f *gofeed.Feed) *Feed {
	out := &Feed{Playlist: Playlist{ID: playlistID, Title: f.Title}}
	if len(f.Authors) > 0 && f.Authors[0] != nil {
		out.Playlist.AuthorName = f.Authors[0].Name
	}
	if ch := extValue(f.Extensions, "yt", "channelId"); ch != "" {
		out.Playlist.AuthorURI = "https://www.youtube.com/channel/" + ch
	}

	for _, it := range f.Items {
		item := Item{
			ID:        extValue(it.Extensions, "yt", "videoId"),
			Title:     it.Title,
			Link:      it.Link,
			Thumbnail: thumbnail(it),
		}
		if item.ID == "" {
			item.ID = it.GUID
		}
		if item.ID == "" {
			continue
		}
		if it.PublishedParsed != nil {
			item.PublishedAt = it.PublishedParsed.UTC()
		}
		out.Items = append(out.Items, item)
	}
	if len(out.Items) > 0 {
		out.Playlist.ThumbnailURL = out.Items[0].Thumbnail
	}
	return out
}

func extValue(exts ext.Extensions, ns, name string) string {
	values := exts[ns][name]
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}

func thumbnail(it *gofeed.Item) string {
	if groups := it.Extensions["media"]["group"]; len(groups) > 0 {
		if thumbs := groups[0].Children["thumbnail"]; len(thumbs) > 0 {
			if u := thumbs[0].Attrs["url"]; u != "" {
				return u
			}
		}
	}
	if it.Image != nil {
		return it.Image.URL
	}
	return ""
}
