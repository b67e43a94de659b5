package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Broadcaster pushes a short notice to the admin chat channel.
type Broadcaster interface {
	Broadcast(text string) error
}

// TelegramBroadcaster delivers admin notices to the configured chats.
type TelegramBroadcaster struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegramBroadcaster(token string, chatIDs []int64) (*TelegramBroadcaster, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramBroadcaster{bot: bot, chatIDs: chatIDs}, nil
}

func (t *TelegramBroadcaster) Broadcast(text string) error {
	var lastErr error
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := t.bot.Send(msg); err != nil {
			lastErr = fmt.Errorf("failed to send to chat %d: %w", chatID, err)
		}
	}
	return lastErr
}
