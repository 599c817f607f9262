package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/RusaUB/finorax/internal/domain/models"
	"github.com/RusaUB/finorax/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes a lock key only if its value matches the caller's token,
// so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker implements repository.Locker using Redis SETNX with a TTL and
// a Lua-based conditional unlock.
type RedisLocker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "finorax:lock:" + key
}

// Acquire obtains a distributed lock for key with the given TTL. On success
// it returns an unlock function, safe to call multiple times. It returns
// models.ErrLockHeld when the lock is held by another party.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, models.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Unlock must succeed even if the caller's context is cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}

	return unlock, nil
}

var _ repository.Locker = (*RedisLocker)(nil)

// NopLocker satisfies repository.Locker without coordination. Used when Redis
// is disabled and a single process owns scoring.
type NopLocker struct{}

func (NopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

var _ repository.Locker = NopLocker{}
