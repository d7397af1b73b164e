package bot

import (
	"context"
	"errors"
	"fmt"

	"tubewatch/internal/feed"
	"tubewatch/internal/settings"
	"tubewatch/internal/storage"
	"tubewatch/internal/tracker"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to TubeWatch!

Track YouTube playlists and run post-processors for every new video.

Quick start:
1. /add <playlist_id> - start tracking a playlist
2. /filter <playlist_id> <regex> - only react to matching titles
3. /rules - see which post-processors fire

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Playlists:
/add <playlist_id> [min] - track a playlist (interval 1-1440, default 60)
/list - show tracked playlists
/info <id> - playlist details and recent videos
/remove <id> - stop tracking a playlist
/interval <id> <min> - set check interval
/filter <id> [regex] - set the title filter, no regex clears it
/check <id> - check now

Subscriptions and rules:
/sync - sync YouTube subscriptions now
/rules - list post-processor rules
/testrule <rule_id> - run a rule with sample values

Settings:
/shorts on|off - skip YouTube Shorts
/settings - show settings`)
}

func (b *Bot) replyError(chatID int64, id string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, fmt.Sprintf("Playlist %s not found.", id))
	case errors.Is(err, feed.ErrInvalidID):
		b.reply(chatID, fmt.Sprintf("%q is not a valid playlist ID.", id))
	case errors.Is(err, feed.ErrPlaylistNotFound):
		b.reply(chatID, fmt.Sprintf("YouTube has no public playlist %s.", id))
	case errors.Is(err, tracker.ErrAlreadyAdded):
		b.reply(chatID, fmt.Sprintf("Playlist %s is already tracked.", id))
	case errors.Is(err, tracker.ErrInvalidInput):
		b.reply(chatID, err.Error())
	default:
		b.log.Error("command failed", "playlist_id", id, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	}
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	p, err := b.svc.AddPlaylist(ctx, parsed.PlaylistID, parsed.IntervalMinutes, "")
	if err != nil {
		b.replyError(chatID, parsed.PlaylistID, err)
		return
	}

	b.replyWithKeyboard(chatID,
		fmt.Sprintf("Playlist added!\n%s (every %d min)\nURL: %s\nExisting videos were recorded without running rules.",
			p.Title, p.IntervalMinutes, tracker.PlaylistURL(p.ID)),
		playlistKeyboard(p.ID))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	playlists, err := b.svc.ListPlaylists(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatPlaylistList(playlists))
}

func (b *Bot) handleInfo(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /info <id>")
		return
	}

	p, err := b.svc.Playlist(ctx, id)
	if err != nil {
		b.replyError(chatID, id, err)
		return
	}
	videos, err := b.svc.Videos(ctx, id)
	if err != nil {
		b.replyError(chatID, id, err)
		return
	}
	b.replyWithKeyboard(chatID, FormatPlaylistInfo(p, videos), playlistKeyboard(id))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /remove <id>")
		return
	}

	if err := b.svc.RemovePlaylist(ctx, id); err != nil {
		b.replyError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Playlist %s removed.", id))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	p, err := b.svc.UpdatePlaylist(ctx, id, &mins, nil)
	if err != nil {
		b.replyError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("%s is now checked every %d min.", p.Title, p.IntervalMinutes))
}

func (b *Bot) handleFilter(ctx context.Context, chatID int64, args string) {
	id, pattern, err := ParseFilterArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	p, err := b.svc.UpdatePlaylist(ctx, id, nil, &pattern)
	if err != nil {
		b.replyError(chatID, id, err)
		return
	}
	if p.TitleFilter == "" {
		b.reply(chatID, fmt.Sprintf("Title filter cleared for %s.", p.Title))
		return
	}
	b.reply(chatID, fmt.Sprintf("Title filter for %s set to %s", p.Title, p.TitleFilter))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}

	if err := b.svc.CheckNow(ctx, id); err != nil {
		b.replyError(chatID, id, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Playlist %s checked.", id))
}

func (b *Bot) handleSync(ctx context.Context, chatID int64) {
	res, err := b.svc.RefreshSubscriptions(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Sync failed: %v", err))
		return
	}
	b.reply(chatID, FormatSyncResult(res))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.svc.ListRules(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) handleTestRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /testrule <rule_id>")
		return
	}

	out, err := b.svc.TestRule(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Rule %s not found.", id))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule %s failed: %v", id, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule %s succeeded.\n\n%s", id, out))
}

func (b *Bot) handleShorts(ctx context.Context, chatID int64, args string) {
	on, err := ParseSwitch(args)
	if err != nil {
		b.reply(chatID, "Usage: /shorts on|off")
		return
	}

	if err := b.svc.SetSetting(ctx, settings.KeyExcludeShorts, settings.FormatBool(on)); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if on {
		b.reply(chatID, "Shorts are now skipped.")
		return
	}
	b.reply(chatID, "Shorts are now processed like any other video.")
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64) {
	s, err := b.svc.Settings(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSettings(s))
}
