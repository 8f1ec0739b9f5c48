package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/botte/botte-service/internal/metrics"
	"github.com/botte/botte-service/internal/taskqueue"
	"github.com/botte/botte-service/internal/tasks"
)

// TaskWriter stores a task in the queue table.
type TaskWriter interface {
	WriteTask(ctx context.Context, task *tasks.BotteMessageTask) taskqueue.WriteTaskResult
}

// QueueMessage is one message to enqueue.
type QueueMessage struct {
	Text          string
	DoProcessFIFO bool
	FIFOGroupID   string
	// ExpirationTs defaults to now: the row only has to live until the
	// stream has emitted it.
	ExpirationTs int64
}

// QueueClient sends messages by writing tasks to the queue.
type QueueClient struct {
	queue     TaskWriter
	senderApp string
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewQueueClient creates a queue client that signs tasks with senderApp.
func NewQueueClient(queue TaskWriter, senderApp string, logger *zerolog.Logger) *QueueClient {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &QueueClient{queue: queue, senderApp: senderApp, logger: logger, now: time.Now}
}

// SendMessage builds a task and writes it. The returned task carries the
// generated KSUID.
func (c *QueueClient) SendMessage(ctx context.Context, msg QueueMessage) (*tasks.BotteMessageTask, error) {
	expirationTs := msg.ExpirationTs
	if expirationTs == 0 {
		expirationTs = c.now().Unix()
	}

	task := tasks.New(tasks.NewTaskInput{
		Text:          msg.Text,
		SenderApp:     c.senderApp,
		DoProcessFIFO: msg.DoProcessFIFO,
		FIFOGroupID:   msg.FIFOGroupID,
		ExpirationTs:  expirationTs,
	})

	result := c.queue.WriteTask(ctx, task)
	metrics.TasksWritten.WithLabelValues(writeResult(result.Err)).Inc()
	if result.Err != nil {
		return nil, result.Err
	}

	c.logger.Info().
		Str("pk", result.PK).
		Str("sk", result.SK).
		Str("sender_app", c.senderApp).
		Msg("Task queued")
	return task, nil
}

func writeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, taskqueue.ErrPrimaryKeyConstraint):
		return "duplicate"
	case tasks.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}
