package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker shares key locks across processes with SET NX PX.
type RedisLocker struct {
	client   redis.Cmdable
	prefix   string
	newToken func() string
}

// NewRedisLocker creates a locker. Keys are stored as prefix+key.
func NewRedisLocker(client redis.Cmdable, prefix string) *RedisLocker {
	return &RedisLocker{
		client:   client,
		prefix:   prefix,
		newToken: func() string { return uuid.NewString() },
	}
}

// TryLock takes key for ttl if nobody holds it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	redisKey := l.prefix + key
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", redisKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("redis release %s: %w", redisKey, err)
		}
		return nil
	}, true, nil
}
