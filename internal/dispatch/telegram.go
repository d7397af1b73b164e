package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tubewatch/internal/render"
)

// TelegramData is the Data payload of a telegram rule.
type TelegramData struct {
	Text string `json:"text"`
}

const defaultTelegramText = "New video in [[playlist.title]]: [[video.title]]\n[[video.url]]"

func (d *Dispatcher) telegram(ctx context.Context, target string, data TelegramData, vars render.Vars) (string, error) {
	if d.messenger == nil {
		return "", errors.New("telegram is not configured")
	}
	chatID, err := parseChatID(target)
	if err != nil {
		return "", err
	}
	tmpl := data.Text
	if tmpl == "" {
		tmpl = defaultTelegramText
	}
	text := render.String(tmpl, vars, render.Plain)
	if err := d.messenger.SendText(ctx, chatID, text); err != nil {
		return "", fmt.Errorf("send telegram message: %w", err)
	}
	return text, nil
}

func parseChatID(target string) (int64, error) {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: chat id %q", ErrInvalidRule, target)
	}
	return id, nil
}
