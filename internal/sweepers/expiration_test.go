package sweepers

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botte/botte-service/internal/taskqueue"
	"github.com/botte/botte-service/internal/tasks"
	"github.com/botte/botte-service/internal/testutil"
)

func TestExpirationSweeper(t *testing.T) {
	pool := testutil.NewPostgresPool(t)
	ctx := context.Background()
	require.NoError(t, taskqueue.Migrate(ctx, pool))
	q := taskqueue.New(pool)

	base := time.Now()
	soon := tasks.New(tasks.NewTaskInput{Text: "soon", SenderApp: "BOTTE_SWEEPER_TEST", ExpirationTs: base.Add(time.Minute).Unix()})
	later := tasks.New(tasks.NewTaskInput{Text: "later", SenderApp: "BOTTE_SWEEPER_TEST", ExpirationTs: base.Add(time.Hour).Unix()})
	require.NoError(t, q.WriteTask(ctx, soon).Err)
	require.NoError(t, q.WriteTask(ctx, later).Err)

	logger := zerolog.Nop()
	s := NewExpirationSweeper(q, &logger, time.Minute, 24*time.Hour)
	s.now = func() time.Time { return base.Add(2 * time.Minute) }

	require.NoError(t, s.Sweep(ctx))

	_, err := q.GetItem(ctx, soon.PartitionKey(), soon.KSUID.String())
	assert.Error(t, err)
	_, err = q.GetItem(ctx, later.PartitionKey(), later.KSUID.String())
	assert.NoError(t, err)

	// The change log is younger than the retention: nothing trimmed.
	res := q.ReadStream(ctx, taskqueue.ReadStreamInput{})
	require.NoError(t, res.Err)
	assert.Len(t, res.Rows, 3)
}

func TestExpirationSweeperStops(t *testing.T) {
	logger := zerolog.Nop()
	s := NewExpirationSweeper(nil, &logger, time.Hour, time.Hour)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
