package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"jobfinder_bot/internal/digest"
)

// newMessage converts a rendered digest into an HTML message with an inline
// keyboard when controls are present.
func newMessage(chatID int64, m digest.Message) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, m.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if m.HasControls() {
		msg.ReplyMarkup = keyboard(m.Controls)
	}
	return msg
}

func keyboard(rows [][]digest.Control) tgbotapi.InlineKeyboardMarkup {
	kb := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			if c.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(c.Text, c.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Text, c.Data))
		}
		kb = append(kb, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}
