package telegram

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is an incoming webhook update. Only message updates are handled.
type Update = tgbotapi.Update

type (
	User            = tgbotapi.User
	Chat            = tgbotapi.Chat
	MessageEntity   = tgbotapi.MessageEntity
	WebhookInfo     = tgbotapi.WebhookInfo
	ReceivedMessage = tgbotapi.Message
)

// Message is a message sent through the bot API.
type Message struct {
	tgbotapi.Message

	// Raw is the message as returned by the API.
	Raw json.RawMessage `json:"-"`
}

// APIError is a failed bot API call.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}
