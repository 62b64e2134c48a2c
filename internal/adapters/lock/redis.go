// Package lock provides cross-instance mutual exclusion for scheduled jobs.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "polyledger:lock:"

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot release a lock someone else took since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements ports.Locker with SET NX PX.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisLocker wraps a connected client. ttl bounds how long a crashed
// holder can block the others.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("lock.Dial: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("lock.Dial: ping: %w", err)
	}
	return rdb, nil
}

// TryLock acquires key without waiting.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	token := uuid.New().String()
	k := keyPrefix + key
	ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock.TryLock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Err(); err != nil {
			return fmt.Errorf("lock.Unlock %s: %w", key, err)
		}
		return nil
	}
	return unlock, true, nil
}
