package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobfinder_bot/internal/digest"
	"jobfinder_bot/internal/filter"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	b.ack(cb.ID, "")

	action, arg, _ := strings.Cut(cb.Data, ":")

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case digest.ActionRefresh:
		b.sendDigest(ctx, chatID, b.cfg.Sources, JobsHeading, filter.Query{})
	case digest.ActionCategories:
		b.handleCategories(ctx, chatID)
	case digest.ActionCategory:
		b.handleCategory(ctx, chatID, arg)
	}
}
