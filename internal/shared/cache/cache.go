package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

func ConnectRedis(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// RedisCache stores JSON snapshots under a key prefix with a fixed TTL.
type RedisCache struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedisCache(c *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, Prefix: prefix, TTL: ttl}
}

func (r *RedisCache) key(id string) string { return r.Prefix + id }

func (r *RedisCache) SetJSON(ctx context.Context, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, r.key(id), b, r.TTL).Err()
}

// GetJSON reports false when the key is missing or expired.
func (r *RedisCache) GetJSON(ctx context.Context, id string, v any) (bool, error) {
	b, err := r.Client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, v)
}
