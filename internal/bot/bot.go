// Package bot provides the Telegram control surface and the message sender
// used by telegram post-processor rules.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tubewatch/internal/config"
	"tubewatch/internal/model"
	"tubewatch/internal/settings"
	"tubewatch/internal/subsync"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the set of tracker operations the bot exposes.
type Service interface {
	AddPlaylist(ctx context.Context, id string, intervalMinutes int, titleFilter string) (*model.Playlist, error)
	UpdatePlaylist(ctx context.Context, id string, intervalMinutes *int, titleFilter *string) (*model.Playlist, error)
	RemovePlaylist(ctx context.Context, id string) error
	CheckNow(ctx context.Context, id string) error
	ListPlaylists(ctx context.Context) ([]model.Playlist, error)
	Playlist(ctx context.Context, id string) (*model.Playlist, error)
	Videos(ctx context.Context, id string) ([]model.Video, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	TestRule(ctx context.Context, id string) (string, error)
	RefreshSubscriptions(ctx context.Context) (subsync.Result, error)
	Settings(ctx context.Context) (settings.Settings, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api telegramAPI
	svc Service
	cfg *config.Config
	log *slog.Logger
}

// New creates a Bot with the given Telegram token and config. The bot can
// send messages right away; commands are served once Run is given a Service.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api: api,
		cfg: cfg,
		log: log,
	}, nil
}

// Run serves commands through svc with a long-polling loop, blocking until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context, svc Service) {
	b.svc = svc

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendText delivers a telegram rule message.
func (b *Bot) SendText(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "info":
		b.handleInfo(ctx, chatID, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case "filter":
		b.handleFilter(ctx, chatID, args)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	case "sync":
		b.handleSync(ctx, chatID)
	case "rules":
		b.handleRules(ctx, chatID)
	case "testrule":
		b.handleTestRule(ctx, chatID, args)
	case "shorts":
		b.handleShorts(ctx, chatID, args)
	case "settings":
		b.handleSettings(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
