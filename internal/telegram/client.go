// Package telegram wraps the bot API SDK for the handful of methods the relay
// and the webhook need. Requests go through the retrying, rate-limited HTTP
// client.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/botte/botte-service/config"
	bhttp "github.com/botte/botte-service/internal/http"
	"github.com/botte/botte-service/internal/http/ratelimit"
)

const redactedToken = "<redacted>"

// Client calls the bot API through the retrying, rate-limited HTTP client.
type Client struct {
	http    *bhttp.Client
	baseURL string
	token   *config.SecretSource
}

// NewClient creates a client for the configured bot.
func NewClient(cfg config.TelegramConfig, token *config.SecretSource) *Client {
	rl := ratelimit.WithOverrides(ratelimit.PartialConfig{
		RequestsPerSecond: &cfg.RequestsPerSecond,
		MaxRetries:        &cfg.MaxRetries,
		InitialBackoffMs:  &cfg.InitialBackoffMs,
		MaxBackoffMs:      &cfg.MaxBackoffMs,
	})
	return &Client{
		http:    bhttp.NewClient(rl, cfg.Timeout),
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		token:   token,
	}
}

// SendMessage sends text to a chat: a numeric chat id or an @channel name.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (*Message, error) {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return c.send(ctx, tgbotapi.NewMessage(id, text))
	}
	return c.send(ctx, tgbotapi.NewMessageToChannel(chatID, text))
}

// ReplyTo answers a message in its chat.
func (c *Client) ReplyTo(ctx context.Context, to *ReceivedMessage, text string) (*Message, error) {
	if to.Chat == nil {
		return nil, fmt.Errorf("telegram sendMessage: message %d has no chat", to.MessageID)
	}
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	return c.send(ctx, msg)
}

func (c *Client) send(ctx context.Context, msg tgbotapi.MessageConfig) (*Message, error) {
	bot, err := c.bot(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := bot.Request(msg)
	if err != nil {
		return nil, apiError("sendMessage", err)
	}

	sent := &Message{Raw: resp.Result}
	if err := json.Unmarshal(resp.Result, &sent.Message); err != nil {
		return nil, fmt.Errorf("telegram sendMessage: malformed result: %w", err)
	}
	return sent, nil
}

// SetWebhook registers the webhook url. Telegram echoes secretToken in the
// X-Telegram-Bot-Api-Secret-Token header of every update.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	bot, err := c.bot(ctx)
	if err != nil {
		return err
	}

	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonEmpty("secret_token", secretToken)
	if err := params.AddInterface("allowed_updates", []string{"message"}); err != nil {
		return err
	}

	resp, err := bot.MakeRequest("setWebhook", params)
	if err != nil {
		return apiError("setWebhook", err)
	}
	var ok bool
	if err := json.Unmarshal(resp.Result, &ok); err != nil || !ok {
		return &APIError{Method: "setWebhook", Description: "webhook was not set"}
	}
	return nil
}

// GetWebhookInfo returns the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	bot, err := c.bot(ctx)
	if err != nil {
		return nil, err
	}

	info, err := bot.GetWebhookInfo()
	if err != nil {
		return nil, apiError("getWebhookInfo", err)
	}
	return &info, nil
}

// bot builds an SDK handle bound to ctx. The token is read on every call so
// that a rotated secret is picked up.
func (c *Client) bot(ctx context.Context) (*tgbotapi.BotAPI, error) {
	token, err := c.token.Get()
	if err != nil {
		return nil, fmt.Errorf("telegram token: %w", err)
	}
	if token == "" {
		return nil, fmt.Errorf("telegram token: empty")
	}

	bot := &tgbotapi.BotAPI{
		Token:  token,
		Buffer: 100,
		Client: &transport{ctx: ctx, http: c.http, token: token},
	}
	bot.SetAPIEndpoint(c.baseURL + "/bot%s/%s")
	return bot, nil
}

func apiError(method string, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &APIError{
			Method:      method,
			Code:        tgErr.Code,
			Description: tgErr.Message,
			RetryAfter:  tgErr.RetryAfter,
		}
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

// transport is the SDK's HTTPClient on top of the retrying client. The SDK
// builds requests without a context, so the call's context is carried here.
type transport struct {
	ctx   context.Context
	http  *bhttp.Client
	token string
}

func (t *transport) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = data
	}

	resp, err := t.http.Do(t.ctx, req.Method, req.URL.String(), body, req.Header)
	if err == nil {
		return resp, nil
	}

	var retryErr *ratelimit.RetryError
	if !errors.As(err, &retryErr) {
		return nil, err
	}

	// The API explains failures in a JSON body; the SDK decodes it into
	// a *tgbotapi.Error.
	if retryErr.LastStatus != 0 && json.Valid(retryErr.Body) {
		return &http.Response{
			Status:     http.StatusText(retryErr.LastStatus),
			StatusCode: retryErr.LastStatus,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(retryErr.Body)),
			Request:    req,
		}, nil
	}

	retryErr.URL = strings.ReplaceAll(retryErr.URL, t.token, redactedToken)
	var urlErr *url.Error
	if errors.As(retryErr.LastError, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, t.token, redactedToken)
	}
	return nil, retryErr
}
