// Package idempotency remembers which tasks were already delivered, so a
// redelivered stream batch does not send the same message twice.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botte/botte-service/config"
	"github.com/botte/botte-service/internal/tasks"
)

const defaultPrefix = "botte:delivered:"

// Claims outlive the task row so late redeliveries are still caught.
const (
	claimGrace  = time.Hour
	minClaimTTL = time.Minute
)

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	return rdb, nil
}

// Guard claims tasks in Redis with SET NX.
type Guard struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func New(rdb *redis.Client, prefix string) *Guard {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Guard{rdb: rdb, prefix: prefix, now: time.Now}
}

func (g *Guard) key(task *tasks.BotteMessageTask) string {
	return g.prefix + task.KSUID.String()
}

func (g *Guard) ttl(task *tasks.BotteMessageTask) time.Duration {
	ttl := time.Unix(task.ExpirationTs, 0).Sub(g.now()) + claimGrace
	if ttl < minClaimTTL {
		return minClaimTTL
	}
	return ttl
}

// Claim returns true when the caller is the first to deliver the task.
func (g *Guard) Claim(ctx context.Context, task *tasks.BotteMessageTask) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, g.key(task), task.SenderApp, g.ttl(task)).Result()
	if err != nil {
		return false, fmt.Errorf("error claiming task %s: %w", task.KSUID, err)
	}
	return ok, nil
}

// Release drops a claim so the task can be delivered again.
func (g *Guard) Release(ctx context.Context, task *tasks.BotteMessageTask) error {
	if err := g.rdb.Del(ctx, g.key(task)).Err(); err != nil {
		return fmt.Errorf("error releasing task %s: %w", task.KSUID, err)
	}
	return nil
}
