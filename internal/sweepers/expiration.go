package sweepers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/botte/botte-service/internal/metrics"
	"github.com/botte/botte-service/internal/taskqueue"
)

// ExpirationSweeper deletes task rows past their ExpirationTs and trims the
// change log. Deletion is best-effort: a row may outlive its expiration by up
// to one interval.
type ExpirationSweeper struct {
	queue     *taskqueue.TaskQueue
	logger    *zerolog.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
}

// NewExpirationSweeper creates a new sweeper for the task table
func NewExpirationSweeper(queue *taskqueue.TaskQueue, logger *zerolog.Logger, interval, retention time.Duration) *ExpirationSweeper {
	return &ExpirationSweeper{
		queue:     queue,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the sweep every interval until ctx is done or Stop is called
func (s *ExpirationSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("stream_retention", s.retention).
		Msg("Starting expiration sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Expiration sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Expiration sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to sweep expired tasks")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *ExpirationSweeper) Stop() {
	close(s.stopChan)
}

// Sweep runs one pass
func (s *ExpirationSweeper) Sweep(ctx context.Context) error {
	now := s.now()

	expired, err := s.queue.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to delete expired tasks: %w", err)
	}
	metrics.SweptRows.WithLabelValues("botte_tasks").Add(float64(expired))

	trimmed, err := s.queue.TrimStream(ctx, now.Add(-s.retention))
	if err != nil {
		return fmt.Errorf("failed to trim task stream: %w", err)
	}
	metrics.SweptRows.WithLabelValues("botte_task_stream").Add(float64(trimmed))

	if expired > 0 || trimmed > 0 {
		s.logger.Info().
			Int64("expired", expired).
			Int64("trimmed", trimmed).
			Msg("Swept task table")
	}
	return nil
}
