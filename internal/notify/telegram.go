package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// telegramSender is the part of *tgbotapi.BotAPI the notifier uses.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts reminders to the chat registered for each user.
type TelegramNotifier struct {
	api   telegramSender
	chats map[string]int64
}

// NewTelegramNotifier connects to the Bot API with token. chats maps a
// user email to its chat id.
func NewTelegramNotifier(token string, chats map[string]int64) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return newTelegramNotifier(bot, chats), nil
}

func newTelegramNotifier(api telegramSender, chats map[string]int64) *TelegramNotifier {
	// Config keys arrive lower-cased, so lookups are case-insensitive.
	normalized := make(map[string]int64, len(chats))
	for email, id := range chats {
		normalized[strings.ToLower(email)] = id
	}
	return &TelegramNotifier{api: api, chats: normalized}
}

// Notify sends msg to the recipient's chat. A recipient without a chat is a
// transport failure.
func (n *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Channel: "telegram", Err: err}
	}
	chatID, ok := n.chats[strings.ToLower(msg.To)]
	if !ok {
		return &TransportError{Channel: "telegram", Err: fmt.Errorf("no chat registered for %s", msg.To)}
	}

	out := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\n\n%s", msg.Subject, msg.Body))
	if _, err := n.api.Send(out); err != nil {
		return &TransportError{Channel: "telegram", Err: fmt.Errorf("sending to chat %d: %w", chatID, err)}
	}
	return nil
}
