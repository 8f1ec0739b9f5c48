package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/botte/botte-service/internal/telegram"
)

// ErrCircuitOpen is returned without calling the bot API while the circuit
// is open.
var ErrCircuitOpen = gobreaker.ErrOpenState

// BreakerSender stops calling the bot API after repeated failures, so stream
// batches fail fast while it is down.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSender wraps next. failures consecutive failures open the
// circuit for resetTimeout; then one probe is let through.
func NewBreakerSender(next Sender, failures int, resetTimeout time.Duration, logger *zerolog.Logger) *BreakerSender {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BreakerSender{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "telegram",
			MaxRequests: 1,
			Timeout:     resetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failures)
			},
			IsSuccessful: isAvailable,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
		}),
	}
}

// SendMessage implements Sender.
func (b *BreakerSender) SendMessage(ctx context.Context, chatID, text string) (*telegram.Message, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.SendMessage(ctx, chatID, text)
	})
	if err != nil {
		return nil, err
	}
	return res.(*telegram.Message), nil
}

// State reports the circuit state: closed, half-open or open.
func (b *BreakerSender) State() string {
	return b.cb.State().String()
}

// isAvailable tells the breaker whether the API answered. Rejections of the
// request itself (bad chat id, text too long) do not count as outages.
func isAvailable(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code != http.StatusTooManyRequests && apiErr.Code < http.StatusInternalServerError
	}
	return false
}
