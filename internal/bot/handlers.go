package bot

import (
	"context"
	"fmt"
	"slices"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobfinder_bot/internal/aggregator"
	"jobfinder_bot/internal/digest"
	"jobfinder_bot/internal/filter"
	"jobfinder_bot/internal/model"
)

const (
	cmdStart      = "start"
	cmdHelp       = "help"
	cmdJobs       = "jobs"
	cmdSubscribe  = "subscribe"
	cmdSources    = "sources"
	cmdCategories = "categories"
	cmdReset      = "reset"
)

// JobsHeading titles interactive digests.
const JobsHeading = "💼 Latest Government Jobs"

// searchFetchCap is the per-source fetch size used when a query narrows the
// results, so filtering has more than the display cap to choose from.
const searchFetchCap = 25

func (b *Bot) handleStart(chatID int64, firstName string) {
	name := firstName
	if name == "" {
		name = "there"
	}
	b.reply(chatID, fmt.Sprintf(`Namaste %s! 👋
Jobfinder Bot is running.

Send /jobs for the latest government job alerts, or ask me any question.
Use /subscribe to get a digest every day at %s.

Use /help for the full command reference.`, name, b.cfg.DigestTime))
}

func (b *Bot) handleHelp(chatID int64) {
	text := `Job alerts:
/jobs — latest openings from all sources
/jobs <words> — only titles matching words (-word excludes, re:<regex> for patterns)
/categories — browse one source at a time
/sources — list the job feeds
/subscribe — daily digest in this chat`
	if b.assistant != nil {
		text += `

Assistant:
Send any text message to ask a question.
/reset — forget our conversation`
	}
	b.reply(chatID, text)
}

func (b *Bot) handleJobs(ctx context.Context, chatID int64, args string) {
	q, err := filter.ParseQuery(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid search: %v", err))
		return
	}
	b.sendDigest(ctx, chatID, b.cfg.Sources, JobsHeading, q)
}

// sendDigest aggregates sources with the interactive limits and replies with
// the rendered digest and its controls.
func (b *Bot) sendDigest(ctx context.Context, chatID int64, sources []model.FeedSource, heading string, q filter.Query) {
	limits := b.cfg.Limits
	opts := aggregator.Options{
		MaxEntries:  limits.Interactive.MaxEntries,
		MaxSections: limits.MaxSections,
	}
	if !q.IsEmpty() {
		opts.MaxEntries = max(searchFetchCap, limits.Interactive.MaxEntries)
	}

	d := b.agg.Aggregate(ctx, sources, opts)
	if !q.IsEmpty() {
		d = filter.Apply(d, q, limits.Interactive.MaxEntries)
	}

	msg := digest.Format(d, heading, digest.Options{
		MaxTitleLen:   limits.Interactive.MaxTitleLen,
		MaxMessageLen: limits.MaxMessageLen,
		WithControls:  true,
	})
	b.send(ctx, chatID, msg)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64) {
	ids, err := b.store.List(ctx)
	if err != nil {
		b.log.Error("list subscribers", "error", err)
		b.reply(chatID, "Could not subscribe right now. Please try again later.")
		return
	}
	if slices.Contains(ids, chatID) {
		b.reply(chatID, fmt.Sprintf("You are already subscribed. The digest arrives every day at %s.", b.cfg.DigestTime))
		return
	}

	if err := b.store.Add(ctx, chatID); err != nil {
		b.log.Error("add subscriber", "chat_id", chatID, "error", err)
		b.reply(chatID, "Could not subscribe right now. Please try again later.")
		return
	}
	b.log.Info("subscribed", "chat_id", chatID)
	b.reply(chatID, fmt.Sprintf("Subscribed! ✅ You will get the job digest every day at %s.", b.cfg.DigestTime))
}

func (b *Bot) handleSources(ctx context.Context, chatID int64) {
	b.send(ctx, chatID, digest.Message{Text: digest.FormatSources(b.cfg.Sources)})
}

func (b *Bot) handleCategories(ctx context.Context, chatID int64) {
	b.send(ctx, chatID, digest.FormatCategories(b.cfg.Sources))
}

func (b *Bot) handleCategory(ctx context.Context, chatID int64, key string) {
	for _, src := range b.cfg.Sources {
		if src.Key == key {
			b.sendDigest(ctx, chatID, []model.FeedSource{src}, "💼 "+src.Name, filter.Query{})
			return
		}
	}
	b.reply(chatID, "Unknown category. Use /categories to pick one.")
}

func (b *Bot) handleReset(chatID int64) {
	if b.assistant == nil {
		b.reply(chatID, "Nothing to reset.")
		return
	}
	b.assistant.Forget(chatID)
	b.reply(chatID, "Conversation cleared.")
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Text == "" {
		return
	}
	if b.assistant == nil {
		b.reply(chatID, "Send /jobs for the latest openings or /help for commands.")
		return
	}

	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.log.Debug("send typing action", "chat_id", chatID, "error", err)
	}

	answer, err := b.assistant.Ask(ctx, chatID, msg.Text)
	if err != nil {
		b.log.Error("assistant", "chat_id", chatID, "error", err)
		b.reply(chatID, "Sorry, I could not answer that right now. Please try again later.")
		return
	}
	b.reply(chatID, answer)
}
