package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dontendero/backend/internal/domain"
)

type RedisShiftCache struct {
	client *redis.Client
}

func NewRedisShiftCache(addr string, password string, db int) *RedisShiftCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisShiftCache{client: client}
}

func (c *RedisShiftCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisShiftCache) Close() error {
	return c.client.Close()
}

func (c *RedisShiftCache) Get(ctx context.Context, key string) (*domain.CashShift, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var shift domain.CashShift
	if err := json.Unmarshal([]byte(val), &shift); err != nil {
		return nil, false, err
	}
	return &shift, true, nil
}

func (c *RedisShiftCache) Set(ctx context.Context, key string, value *domain.CashShift, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisShiftCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
