// Package bot answers the messages the owner sends to the bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/botte/botte-service/internal/metrics"
	"github.com/botte/botte-service/internal/telegram"
)

// ErrUnknownChatID is returned for messages from any chat but the owner's.
var ErrUnknownChatID = errors.New("not a chat id with the owner")

const (
	WelcomeText   = "Hi there, I am Botte.\nI am here to echo your kind words back to you."
	LinkThanks    = "Thanks! Soon I will start collecting links for kbee..."
	UsageHintText = "I support only the command /echo and the sharing of links"
)

// Replier sends a reply to a message.
type Replier interface {
	ReplyTo(ctx context.Context, to *telegram.ReceivedMessage, text string) (*telegram.Message, error)
}

type Bot struct {
	replier Replier
	chatID  int64
	logger  *zerolog.Logger
}

// New creates a bot that only talks to chatID.
func New(replier Replier, chatID string, logger *zerolog.Logger) (*Bot, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bot{replier: replier, chatID: id, logger: logger}, nil
}

// ProcessUpdate dispatches one webhook update. Updates without a text
// message are ignored.
func (b *Bot) ProcessUpdate(ctx context.Context, update telegram.Update) error {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		metrics.BotUpdates.WithLabelValues("ignored").Inc()
		return nil
	}

	command := Command(msg.Text)
	b.logger.Debug().Int("update_id", update.UpdateID).Str("command", command).Msg("Processing update")

	switch command {
	case "help", "start":
		metrics.BotUpdates.WithLabelValues(command).Inc()
		return b.reply(ctx, msg, WelcomeText)
	case "echo":
		metrics.BotUpdates.WithLabelValues(command).Inc()
		return b.reply(ctx, msg, msg.Text)
	default:
		metrics.BotUpdates.WithLabelValues("text").Inc()
		if hasURL(msg) {
			return b.reply(ctx, msg, LinkThanks)
		}
		return b.reply(ctx, msg, UsageHintText)
	}
}

func (b *Bot) reply(ctx context.Context, msg *telegram.ReceivedMessage, text string) error {
	if msg.Chat == nil {
		return fmt.Errorf("%w: message %d has no chat", ErrUnknownChatID, msg.MessageID)
	}
	if msg.Chat.ID != b.chatID {
		return fmt.Errorf("%w: %d", ErrUnknownChatID, msg.Chat.ID)
	}
	if _, err := b.replier.ReplyTo(ctx, msg, text); err != nil {
		return fmt.Errorf("error replying to message %d: %w", msg.MessageID, err)
	}
	return nil
}

// Command returns the bot command of a message text without the slash and
// the @botname suffix, or "" when the text is not a command.
func Command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word, _, _ := strings.Cut(strings.Fields(text)[0], "@")
	return strings.TrimPrefix(word, "/")
}

func hasURL(msg *telegram.ReceivedMessage) bool {
	for _, entity := range msg.Entities {
		if entity.Type == "url" {
			return true
		}
	}
	return false
}
