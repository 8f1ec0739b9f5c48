package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botte/botte-service/config"
	"github.com/botte/botte-service/internal/tasks"
	"github.com/botte/botte-service/internal/testutil"
)

func TestClaimTTL(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := New(nil, "")
	g.now = func() time.Time { return base }

	task := tasks.New(tasks.NewTaskInput{Text: "hi", SenderApp: "BOTTE_TEST", ExpirationTs: base.Add(30 * time.Minute).Unix()})
	assert.Equal(t, 90*time.Minute, g.ttl(task))

	expired := tasks.New(tasks.NewTaskInput{Text: "hi", SenderApp: "BOTTE_TEST", ExpirationTs: base.Add(-2 * time.Hour).Unix()})
	assert.Equal(t, minClaimTTL, g.ttl(expired))

	assert.Equal(t, defaultPrefix+task.KSUID.String(), g.key(task))
}

func TestGuard(t *testing.T) {
	addr := testutil.StartRedis(t)
	ctx := context.Background()

	rdb, err := NewRedisClient(ctx, config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	g := New(rdb, "botte:test:")
	task := tasks.New(tasks.NewTaskInput{Text: "hi", SenderApp: "BOTTE_TEST"})

	first, err := g.Claim(ctx, task)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := g.Claim(ctx, task)
	require.NoError(t, err)
	assert.False(t, second)

	ttl, err := rdb.TTL(ctx, "botte:test:"+task.KSUID.String()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)

	require.NoError(t, g.Release(ctx, task))
	again, err := g.Claim(ctx, task)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisClient(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
