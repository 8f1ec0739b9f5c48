// Package stream consumes the task change log: it turns newly appended rows
// into {"Records": [...]} batches and hands them to a Handler, checkpointing
// what was handled.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/botte/botte-service/internal/metrics"
	"github.com/botte/botte-service/internal/taskqueue"
	"github.com/botte/botte-service/internal/tasks"
)

// Handler processes one batch. Returning a *tasks.ValidationError drops the
// batch; any other error leaves it to be delivered again.
type Handler interface {
	HandleStreamEvent(ctx context.Context, event tasks.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event tasks.Event) error

func (f HandlerFunc) HandleStreamEvent(ctx context.Context, event tasks.Event) error {
	return f(ctx, event)
}

// Config controls batching and polling.
type Config struct {
	ConsumerName string
	// EventNames filters the records handed to the handler. Empty means
	// INSERT only: a REMOVE record would fail the whole batch.
	EventNames   []string
	BatchSize    int
	BatchWindow  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConsumerName == "" {
		c.ConsumerName = "botte-relay"
	}
	if len(c.EventNames) == 0 {
		c.EventNames = []string{tasks.EventInsert}
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	return c
}

// Listener delivers change-log batches to a Handler. Only the instance holding
// the consumer's advisory lock reads; others wait on standby.
type Listener struct {
	pool    *pgxpool.Pool
	queue   *taskqueue.TaskQueue
	handler Handler
	cfg     Config
	logger  *zerolog.Logger
}

func NewListener(pool *pgxpool.Pool, handler Handler, cfg Config, logger *zerolog.Logger) *Listener {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Listener{
		pool:    pool,
		queue:   taskqueue.New(pool),
		handler: handler,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Run consumes the stream until ctx is cancelled. Connection failures are
// logged and the session is re-established after the poll interval.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().
		Str("consumer", l.cfg.ConsumerName).
		Strs("event_names", l.cfg.EventNames).
		Int("batch_size", l.cfg.BatchSize).
		Msg("Starting task stream listener")

	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			l.logger.Info().Msg("Task stream listener stopping (context cancelled)")
			return nil
		}
		if err != nil {
			l.logger.Error().Err(err).Msg("Task stream session failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.PollInterval):
		}
	}
}

func (l *Listener) session(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("error acquiring connection: %w", err)
	}
	defer func() {
		// The session holds LISTEN state and the advisory lock; do not hand
		// it back to the pool.
		conn.Conn().Close(context.Background())
		conn.Release()
	}()

	for {
		locked, err := l.tryLock(ctx, conn.Conn())
		if err != nil {
			return err
		}
		if locked {
			break
		}
		l.logger.Debug().Str("consumer", l.cfg.ConsumerName).Msg("Another listener holds the stream, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.PollInterval):
		}
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{taskqueue.StreamChannel}.Sanitize()); err != nil {
		return fmt.Errorf("error listening on %s: %w", taskqueue.StreamChannel, err)
	}

	l.logger.Info().Str("consumer", l.cfg.ConsumerName).Msg("Task stream listener active")

	for {
		if err := l.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			l.logger.Warn().Err(err).Msg("Stream batch not handled, will retry")
		}

		waitCtx, cancel := context.WithTimeout(ctx, l.cfg.PollInterval)
		_, err := conn.Conn().WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("error waiting for notification: %w", err)
			}
			// Poll.
			continue
		}

		if l.cfg.BatchWindow > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.cfg.BatchWindow):
			}
		}
	}
}

func (l *Listener) tryLock(ctx context.Context, conn *pgx.Conn) (bool, error) {
	var locked bool
	err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, "botte_stream:"+l.cfg.ConsumerName).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("error taking stream lock: %w", err)
	}
	return locked, nil
}

// Drain hands every pending batch to the handler. It stops at the first batch
// the handler fails with a non-validation error; that batch stays pending.
func (l *Listener) Drain(ctx context.Context) error {
	for {
		checkpoint, err := l.queue.GetCheckpoint(ctx, l.cfg.ConsumerName)
		if err != nil {
			return fmt.Errorf("error reading checkpoint: %w", err)
		}

		res := l.queue.ReadStream(ctx, taskqueue.ReadStreamInput{
			AfterSeq:   checkpoint,
			EventNames: l.cfg.EventNames,
			Limit:      l.cfg.BatchSize,
		})
		if res.Err != nil {
			return fmt.Errorf("error reading task stream: %w", res.Err)
		}
		if res.LastSeq == checkpoint {
			return nil
		}

		if len(res.Rows) > 0 {
			if err := l.handle(ctx, res); err != nil {
				return err
			}
		}

		if err := l.queue.SaveCheckpoint(ctx, l.cfg.ConsumerName, res.LastSeq); err != nil {
			return fmt.Errorf("error saving checkpoint: %w", err)
		}
	}
}

func (l *Listener) handle(ctx context.Context, res taskqueue.ReadStreamResult) error {
	event := tasks.Event{Records: make([]json.RawMessage, 0, len(res.Rows))}
	for _, row := range res.Rows {
		raw, err := row.RawRecord()
		if err != nil {
			return fmt.Errorf("error rendering record %d: %w", row.Seq, err)
		}
		event.Records = append(event.Records, raw)
	}

	err := l.handler.HandleStreamEvent(ctx, event)
	switch {
	case err == nil:
		metrics.StreamBatches.WithLabelValues("ok").Inc()
		metrics.StreamRecords.Add(float64(len(event.Records)))
		l.logger.Debug().Int("records", len(event.Records)).Int64("last_seq", res.LastSeq).Msg("Stream batch handled")
		return nil
	case tasks.IsValidationError(err):
		metrics.StreamBatches.WithLabelValues("dropped").Inc()
		l.logger.Error().Err(err).
			Int("records", len(event.Records)).
			Int64("first_seq", res.Rows[0].Seq).
			Int64("last_seq", res.LastSeq).
			Msg("Dropping invalid stream batch")
		return nil
	default:
		metrics.StreamBatches.WithLabelValues("failed").Inc()
		return err
	}
}
