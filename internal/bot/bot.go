// Package bot implements the Telegram command surface.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobfinder_bot/internal/aggregator"
	"jobfinder_bot/internal/config"
	"jobfinder_bot/internal/digest"
	"jobfinder_bot/internal/model"
	"jobfinder_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Aggregator builds a digest from a set of sources.
type Aggregator interface {
	Aggregate(ctx context.Context, sources []model.FeedSource, opts aggregator.Options) model.Digest
}

// Asker answers free-form questions for a chat.
type Asker interface {
	Ask(ctx context.Context, chatID int64, question string) (string, error)
	Forget(chatID int64)
}

// Bot is the Telegram bot that handles user commands and delivers digests.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	cfg       *config.Config
	agg       Aggregator
	assistant Asker
	log       *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
// assistant may be nil, in which case free text gets a usage hint.
func New(token string, store storage.Storage, agg Aggregator, assistant Asker, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("authorized", "username", api.Self.UserName)

	return &Bot{
		api:       api,
		store:     store,
		cfg:       cfg,
		agg:       agg,
		assistant: assistant,
		log:       log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches one update. A panic is logged and swallowed so the
// polling loop keeps serving other chats.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in update handler", "update_id", update.UpdateID, "panic", r)
		}
	}()

	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.From == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.ack(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleText(ctx, msg)
}

// Deliver sends a rendered digest and reports delivery errors to the caller.
func (b *Bot) Deliver(_ context.Context, chatID int64, m digest.Message) error {
	if _, err := b.api.Send(newMessage(chatID, m)); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, digest.Truncate(text, b.maxMessageLen()))
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

// send delivers a rendered message, logging failures.
func (b *Bot) send(ctx context.Context, chatID int64, m digest.Message) {
	if err := b.Deliver(ctx, chatID, m); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) maxMessageLen() int {
	if n := b.cfg.Limits.MaxMessageLen; n > 0 {
		return n
	}
	return 4096
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case cmdStart:
		b.handleStart(chatID, msg.From.FirstName)
	case cmdHelp:
		b.handleHelp(chatID)
	case cmdJobs:
		b.handleJobs(ctx, chatID, args)
	case cmdSubscribe:
		b.handleSubscribe(ctx, chatID)
	case cmdSources:
		b.handleSources(ctx, chatID)
	case cmdCategories:
		b.handleCategories(ctx, chatID)
	case cmdReset:
		b.handleReset(chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
