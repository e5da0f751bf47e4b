package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// unlockScript deletes the key only while it still holds our lease value.
const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) GetInt(ctx context.Context, key string) (int64, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

func (c *RedisCache) SetInt(ctx context.Context, key string, value int64, ttl time.Duration) error {
	return c.client.Set(ctx, key, strconv.FormatInt(value, 10), ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

type RedisLocker struct {
	client        redis.Cmdable
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{
		client:        client,
		retryInterval: 50 * time.Millisecond,
		maxRetries:    40,
	}
}

// Acquire polls SET NX until it wins or the retry budget runs out.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	value := uuid.NewString()
	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(releaseCtx context.Context) error {
				return l.client.Eval(releaseCtx, unlockScript, []string{key}, value).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	return nil, ErrLockNotAcquired
}
