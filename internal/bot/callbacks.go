package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdCheck        = "check"
	cbDelete        = "delete"
	cbDeleteConfirm = "delete_confirm"
	cbNoop          = "noop"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, id, ok := strings.Cut(data, ":")
	if !ok || id == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"playlist_id", id,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdCheck:
		b.handleCheck(ctx, chatID, id)
	case cbDeleteConfirm:
		p, err := b.svc.Playlist(ctx, id)
		if err != nil {
			b.replyError(chatID, id, err)
			return
		}
		b.replyWithKeyboard(chatID,
			fmt.Sprintf("Stop tracking %q (%s)? Its video history is deleted.", p.Title, id),
			tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("Yes, delete", cbDelete+":"+id),
					tgbotapi.NewInlineKeyboardButtonData("Cancel", cbNoop+":0"),
				),
			))
	case cbDelete:
		b.handleRemove(ctx, chatID, id)
	}
}

func playlistKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check now", cmdCheck+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("Delete", cbDeleteConfirm+":"+id),
		),
	)
}
