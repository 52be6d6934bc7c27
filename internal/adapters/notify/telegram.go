package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramRetries    = 3
	telegramRetryDelay = time.Second
)

// Telegram implementa ports.Notifier sobre el Bot API de Telegram.
type Telegram struct {
	bot           *tgbotapi.BotAPI
	defaultChatID int64
}

// NewTelegram crea el notificador. chatID es el destinatario por defecto
// cuando Deliver recibe un recipient vacío.
func NewTelegram(botToken, chatID string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: create bot: %w", err)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: invalid chat id %q: %w", chatID, err)
	}
	return &Telegram{bot: bot, defaultChatID: id}, nil
}

// Deliver envía el mensaje con retry de backoff lineal. Un recipient no
// numérico es un error; vacío usa el chat por defecto.
func (t *Telegram) Deliver(ctx context.Context, recipient, message string) error {
	chatID := t.defaultChatID
	if recipient != "" {
		id, err := strconv.ParseInt(recipient, 10, 64)
		if err != nil {
			return fmt.Errorf("notify.Deliver: invalid recipient %q: %w", recipient, err)
		}
		chatID = id
	}

	msg := tgbotapi.NewMessage(chatID, message)

	var lastErr error
	for i := 0; i < telegramRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(telegramRetryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("notify.Deliver: failed after %d retries: %w", telegramRetries, lastErr)
}
