// Package relay delivers messages to the owner's chat, whichever way they
// arrive: HTTP, direct invocation or the task stream.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/botte/botte-service/internal/metrics"
	"github.com/botte/botte-service/internal/tasks"
	"github.com/botte/botte-service/internal/telegram"
)

// Entrypoints, used as the metrics label and span attribute.
const (
	EntrypointHTTP   = "http"
	EntrypointInvoke = "invoke"
	EntrypointStream = "stream"
)

const tracerName = "github.com/botte/botte-service/internal/relay"

// Sender sends a text message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) (*telegram.Message, error)
}

// DeliveryGuard remembers delivered stream tasks.
type DeliveryGuard interface {
	Claim(ctx context.Context, task *tasks.BotteMessageTask) (bool, error)
	Release(ctx context.Context, task *tasks.BotteMessageTask) error
}

type Relay struct {
	sender Sender
	chatID string
	guard  DeliveryGuard
	tracer trace.Tracer
	logger *zerolog.Logger
}

// New creates a relay to chatID. guard may be nil: stream batches are then
// delivered at least once with no de-duplication.
func New(sender Sender, chatID string, guard DeliveryGuard, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		sender: sender,
		chatID: chatID,
		guard:  guard,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

// SendText sends one message to the chat.
func (r *Relay) SendText(ctx context.Context, entrypoint, senderApp, text string) (*telegram.Message, error) {
	ctx, span := r.tracer.Start(ctx, "relay.SendText", trace.WithAttributes(
		attribute.String("botte.entrypoint", entrypoint),
		attribute.String("botte.sender_app", senderApp),
		attribute.Int("botte.text_length", len(text)),
	))
	defer span.End()

	start := time.Now()
	msg, err := r.sender.SendMessage(ctx, r.chatID, text)
	metrics.ObserveSend(entrypoint, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return nil, fmt.Errorf("error sending message: %w", err)
	}

	r.logger.Info().
		Str("entrypoint", entrypoint).
		Str("sender_app", senderApp).
		Int("message_id", msg.MessageID).
		Msg("Message sent")
	return msg, nil
}

// InvokeResponse mirrors an HTTP response for direct invocations.
type InvokeResponse struct {
	StatusCode int `json:"statusCode"`
	Body       any `json:"body"`
}

// Invoke handles a direct invocation payload: {"text": ..., "sender_app": ...}.
// A missing text is a 400 response, not an error; a send failure is an error.
func (r *Relay) Invoke(ctx context.Context, payload map[string]any) (InvokeResponse, error) {
	text, _ := payload["text"].(string)
	if text == "" {
		return InvokeResponse{StatusCode: http.StatusBadRequest, Body: "Payload parameter 'text' required"}, nil
	}
	senderApp, _ := payload["sender_app"].(string)

	msg, err := r.SendText(ctx, EntrypointInvoke, senderApp, text)
	if err != nil {
		return InvokeResponse{}, err
	}
	return InvokeResponse{StatusCode: http.StatusOK, Body: msg.Raw}, nil
}

// HandleStreamEvent delivers a change-stream batch. The whole batch is
// decoded first, so an invalid record fails it before anything is sent; the
// tasks then go out in KSUID order. A failed send releases its claim and
// returns the error so the batch is redelivered.
func (r *Relay) HandleStreamEvent(ctx context.Context, event tasks.Event) error {
	ctx, span := r.tracer.Start(ctx, "relay.HandleStreamEvent", trace.WithAttributes(
		attribute.Int("botte.records", len(event.Records)),
	))
	defer span.End()

	batch, err := tasks.CollectFromEvent(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid batch")
		return err
	}
	tasks.SortByKSUID(batch)

	for _, task := range batch {
		if err := r.deliver(ctx, task); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delivery failed")
			return err
		}
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, task *tasks.BotteMessageTask) error {
	if r.guard != nil {
		claimed, err := r.guard.Claim(ctx, task)
		if err != nil {
			return err
		}
		if !claimed {
			metrics.MessagesSent.WithLabelValues(EntrypointStream, "skipped").Inc()
			r.logger.Info().Str("ksuid", task.KSUID.String()).Msg("Task already delivered, skipping")
			return nil
		}
	}

	if _, err := r.SendText(ctx, EntrypointStream, task.SenderApp, task.Text); err != nil {
		if r.guard != nil {
			if relErr := r.guard.Release(ctx, task); relErr != nil {
				r.logger.Error().Err(relErr).Str("ksuid", task.KSUID.String()).Msg("Failed to release task claim")
			}
		}
		return fmt.Errorf("task %s: %w", task.KSUID, err)
	}
	return nil
}
