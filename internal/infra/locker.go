package infra

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DrawerLocker serializes cash-out check+insert sequences per drawer session
// using a Redis-backed distributed lock. Callers that fail to obtain the lock
// fall back to the unlocked best-effort path.
type DrawerLocker struct {
	locker *redislock.Client
}

func NewDrawerLocker(rdb *redis.Client) *DrawerLocker {
	return &DrawerLocker{locker: redislock.New(rdb)}
}

// Lock obtains the per-session lock, waiting briefly for a concurrent holder.
// The returned release func is safe to defer; release errors are ignored
// (the TTL reclaims the lock regardless).
func (l *DrawerLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, "drawer:"+sessionID, 10*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 10),
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}
