package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/canopy/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockAcquire is returned when the lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

// unlockScript deletes the key only if it still holds our token.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client   *backend.Client
	prefix   string
	interval time.Duration
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client:   client,
		prefix:   prefix,
		interval: 100 * time.Millisecond,
	}
}

// Lock acquires the lock for key with SET NX PX, polling until it succeeds
// or ctx is done. Each holder writes a random token so that an expired holder
// cannot release a lock that was taken over by someone else.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	acquired, err := l.try(ctx, lockKey, token, ttl)
	if err != nil {
		return nil, err
	}

	if !acquired {
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for !acquired {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				if acquired, err = l.try(ctx, lockKey, token, ttl); err != nil {
					return nil, err
				}
			}
		}
	}

	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}, nil
}

func (l *Locker) try(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockAcquire, err)
	}
	return ok, nil
}
