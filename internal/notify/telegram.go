package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts notifications to one chat.
type Telegram struct {
	bot    botAPI
	chatID int64
	prefix string
}

func NewTelegram(token string, chatID int64, prefix string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать telegram бота: %w", err)
	}
	bot.Buffer = 0
	return &Telegram{bot: bot, chatID: chatID, prefix: prefix}, nil
}

func (t *Telegram) Notify(_ context.Context, msg string) error {
	text := msg
	if t.prefix != "" {
		text = fmt.Sprintf("[%s] %s", t.prefix, msg)
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("не удалось отправить сообщение в telegram: %w", err)
	}
	return nil
}
