package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botte/botte-service/internal/attrvalue"
	"github.com/botte/botte-service/internal/tasks"
)

// ErrPrimaryKeyConstraint is returned when a task with the same PK and SK
// already exists.
var ErrPrimaryKeyConstraint = errors.New("task with this PK and SK already exists")

const uniqueViolation = "23505"

// TaskQueue is the durable task table. Every write is appended to the change
// log by a trigger, which is what the stream listener consumes.
type TaskQueue struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *TaskQueue {
	return &TaskQueue{pool: pool}
}

// Write stores the wire mapping of a task as a typed image.
func (q *TaskQueue) Write(ctx context.Context, item tasks.Item) error {
	pk, _ := item[tasks.AttrPK].(string)
	sk, _ := item[tasks.AttrSK].(string)
	if pk == "" || sk == "" {
		return fmt.Errorf("item is missing %s or %s", tasks.AttrPK, tasks.AttrSK)
	}
	expirationTs, ok := item[tasks.AttrExpirationTs].(int64)
	if !ok {
		return fmt.Errorf("item %s is not an int64: %v", tasks.AttrExpirationTs, item[tasks.AttrExpirationTs])
	}

	image, err := attrvalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("error encoding item: %w", err)
	}
	data, err := json.Marshal(image)
	if err != nil {
		return fmt.Errorf("error encoding item: %w", err)
	}

	_, err = q.pool.Exec(ctx, `
		INSERT INTO botte_tasks (pk, sk, item, expiration_ts)
		VALUES ($1, $2, $3, $4)
	`, pk, sk, data, expirationTs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s %s", ErrPrimaryKeyConstraint, pk, sk)
		}
		return fmt.Errorf("error writing task: %w", err)
	}
	return nil
}

// WriteTask validates and stores a task.
func (q *TaskQueue) WriteTask(ctx context.Context, task *tasks.BotteMessageTask) WriteTaskResult {
	item, err := task.ToItem()
	if err != nil {
		return WriteTaskResult{Err: err}
	}
	if err := q.Write(ctx, item); err != nil {
		return WriteTaskResult{Err: err}
	}
	return WriteTaskResult{PK: item[tasks.AttrPK].(string), SK: item[tasks.AttrSK].(string)}
}

// GetItem returns the stored typed image, pgx.ErrNoRows when absent.
func (q *TaskQueue) GetItem(ctx context.Context, pk, sk string) (attrvalue.Map, error) {
	var image attrvalue.Map
	err := q.pool.QueryRow(ctx, `
		SELECT item FROM botte_tasks WHERE pk = $1 AND sk = $2
	`, pk, sk).Scan(&image)
	if err != nil {
		return nil, err
	}
	return image, nil
}

// DeleteExpired removes rows whose ExpirationTs is at or before now. The
// deletions show up in the change log as REMOVE records.
func (q *TaskQueue) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM botte_tasks WHERE expiration_ts <= $1
	`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("error deleting expired tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TrimStream drops change-log rows older than the retention that every
// consumer has already checkpointed past.
func (q *TaskQueue) TrimStream(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM botte_task_stream
		WHERE created_at < $1
		  AND seq <= COALESCE((SELECT MIN(seq) FROM botte_stream_checkpoints), 0)
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("error trimming task stream: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReadStream returns change-log rows after input.AfterSeq, oldest first.
// Rows whose event name is not in input.EventNames are skipped but still
// advance LastSeq.
func (q *TaskQueue) ReadStream(ctx context.Context, input ReadStreamInput) ReadStreamResult {
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := q.pool.Query(ctx, `
		SELECT seq, event_name, keys, new_image, old_image, created_at
		FROM botte_task_stream
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, input.AfterSeq, limit)
	if err != nil {
		return ReadStreamResult{Err: err}
	}
	defer rows.Close()

	result := ReadStreamResult{Rows: make([]StreamRow, 0), LastSeq: input.AfterSeq}
	for rows.Next() {
		var row StreamRow
		if err := rows.Scan(&row.Seq, &row.EventName, &row.Keys, &row.NewImage, &row.OldImage, &row.CreatedAt); err != nil {
			return ReadStreamResult{Err: err}
		}
		result.LastSeq = row.Seq
		if len(input.EventNames) > 0 && !slices.Contains(input.EventNames, row.EventName) {
			continue
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ReadStreamResult{Err: err}
	}
	return result
}

// GetCheckpoint returns the last sequence number the consumer acknowledged,
// 0 when it has none.
func (q *TaskQueue) GetCheckpoint(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := q.pool.QueryRow(ctx, `
		SELECT seq FROM botte_stream_checkpoints WHERE consumer = $1
	`, consumer).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

// SaveCheckpoint records the consumer position. It never moves backwards.
func (q *TaskQueue) SaveCheckpoint(ctx context.Context, consumer string, seq int64) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO botte_stream_checkpoints (consumer, seq, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer) DO UPDATE
		SET seq = GREATEST(botte_stream_checkpoints.seq, EXCLUDED.seq),
		    updated_at = NOW()
	`, consumer, seq)
	return err
}
