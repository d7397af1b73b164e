package subsync

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const pageSize = 50

// YouTube lists subscriptions through the YouTube Data API.
type YouTube struct {
	svc       *youtube.Service
	channelID string
}

// NewYouTube creates a YouTube source for the public subscriptions of channelID.
func NewYouTube(ctx context.Context, apiKey, channelID string, opts ...option.ClientOption) (*YouTube, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTube{svc: svc, channelID: channelID}, nil
}

// YouTubeFactory returns a SourceFactory building YouTube sources with the
// extra client options.
func YouTubeFactory(opts ...option.ClientOption) SourceFactory {
	return func(ctx context.Context, apiKey, channelID string) (Source, error) {
		return NewYouTube(ctx, apiKey, channelID, opts...)
	}
}

// Subscriptions pages through the subscription list and looks up the banner
// of every subscribed channel.
func (y *YouTube) Subscriptions(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	token := ""
	for {
		call := y.svc.Subscriptions.List([]string{"snippet"}).
			ChannelId(y.channelID).
			MaxResults(pageSize).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.ResourceId == nil {
				continue
			}
			out = append(out, Subscription{
				ChannelID:    item.Snippet.ResourceId.ChannelId,
				Title:        item.Snippet.Title,
				ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
			})
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	if err := y.fillBanners(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (y *YouTube) fillBanners(ctx context.Context, subs []Subscription) error {
	for start := 0; start < len(subs); start += pageSize {
		end := min(start+pageSize, len(subs))
		ids := make([]string, 0, end-start)
		for _, s := range subs[start:end] {
			ids = append(ids, s.ChannelID)
		}

		resp, err := y.svc.Channels.List([]string{"brandingSettings"}).
			Id(ids...).
			MaxResults(pageSize).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}

		banners := make(map[string]string, len(resp.Items))
		for _, ch := range resp.Items {
			if ch.BrandingSettings != nil && ch.BrandingSettings.Image != nil {
				banners[ch.Id] = ch.BrandingSettings.Image.BannerExternalUrl
			}
		}
		for i := start; i < end; i++ {
			subs[i].BannerURL = banners[subs[i].ChannelID]
		}
	}
	return nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
