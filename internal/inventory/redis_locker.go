package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"
)

const redisLockPrefix = "lock:inventory:"

// RedisLocker shares inventory locks between server instances.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
	log     zerolog.Logger
}

func NewRedisLocker(rdb redislock.RedisClient, ttl time.Duration, wait time.Duration, log zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		wait:    wait,
		backoff: 50 * time.Millisecond,
		log:     log,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys []string) (Unlock, error) {
	keys = normalizeKeys(keys)
	obtainCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	held := make([]*redislock.Lock, 0, len(keys))
	for _, key := range keys {
		lock, err := l.client.Obtain(obtainCtx, redisLockPrefix+key, l.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(l.backoff),
		})
		if err != nil {
			l.releaseAll(held)
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, lock)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(held, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.releaseAll(held)
		})
	}, nil
}

// keepAlive extends the held locks every half TTL until stop is closed, so a
// slow commit does not outlive its locks.
func (l *RedisLocker) keepAlive(locks []*redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			for _, lock := range locks {
				if err := lock.Refresh(ctx, l.ttl, nil); err != nil {
					l.log.Warn().Err(err).Str("key", lock.Key()).Msg("refresh inventory lock")
				}
			}
			cancel()
		}
	}
}

func (l *RedisLocker) releaseAll(locks []*redislock.Lock) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := len(locks) - 1; i >= 0; i-- {
		if err := locks[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn().Err(err).Str("key", locks[i].Key()).Msg("release inventory lock")
		}
	}
}
