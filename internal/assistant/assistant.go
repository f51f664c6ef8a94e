package assistant

import (
	"context"
	"fmt"
	"log/slog"
)

// SystemPrompt frames the model as a government-job helper.
const SystemPrompt = "You are Jobfinder, a helpful assistant for people looking for government jobs. " +
	"Answer concisely about exams, eligibility, application steps and deadlines. " +
	"If you are unsure about a date or figure, say so and suggest checking the official notification."

// Generator produces a reply for a conversation.
type Generator interface {
	Generate(ctx context.Context, turns []Turn) (string, error)
}

// Assistant answers questions while remembering each chat's recent turns.
type Assistant struct {
	gen     Generator
	history *History
	log     *slog.Logger
}

// New creates an Assistant.
func New(gen Generator, history *History, log *slog.Logger) *Assistant {
	return &Assistant{gen: gen, history: history, log: log}
}

// Ask sends question with the chat's history and records both turns on success.
func (a *Assistant) Ask(ctx context.Context, chatID int64, question string) (string, error) {
	user := Turn{Role: RoleUser, Text: question}
	turns := append(a.history.Get(chatID), user)

	reply, err := a.gen.Generate(ctx, turns)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	a.history.Append(chatID, user, Turn{Role: RoleModel, Text: reply})
	a.log.Debug("assistant replied", "chat_id", chatID, "history", len(turns)+1)
	return reply, nil
}

// Forget drops the stored conversation of chatID.
func (a *Assistant) Forget(chatID int64) {
	a.history.Reset(chatID)
}
