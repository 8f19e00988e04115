// Package cache stores code to product-id resolutions in Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stockadj:product-id:"

// RedisIDCache implements the gateway's IDCache on top of Redis strings.
type RedisIDCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisIDCache keeps resolutions for ttl; a zero ttl keeps them forever.
func NewRedisIDCache(client redis.Cmdable, ttl time.Duration) *RedisIDCache {
	return &RedisIDCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func key(code string) string {
	return keyPrefix + code
}

func (c *RedisIDCache) Get(ctx context.Context, code string) (string, bool, error) {
	id, err := c.client.Get(ctx, key(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *RedisIDCache) Set(ctx context.Context, code, id string) error {
	return c.client.Set(ctx, key(code), id, c.ttl).Err()
}

func (c *RedisIDCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, key(code)).Err()
}
