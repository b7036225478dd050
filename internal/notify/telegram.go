package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Telegram sends messages through a Telegram bot. The reminder's target is
// interpreted as a chat id when numeric; otherwise the configured default
// chat receives the message.
type Telegram struct {
	token         string
	defaultChatID int64
	bot           *tgbotapi.BotAPI
}

func NewTelegram(token string, defaultChatID int64) *Telegram {
	return &Telegram{token: token, defaultChatID: defaultChatID}
}

func (t *Telegram) Configured() bool {
	return t.token != "" && t.defaultChatID != 0
}

func (t *Telegram) Send(ctx context.Context, target, message string) error {
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			return fmt.Errorf("telegram bot init: %w", err)
		}
		t.bot = bot
	}

	chatID := t.defaultChatID
	if id, err := strconv.ParseInt(target, 10, 64); err == nil && id != 0 {
		chatID = id
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, message)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
