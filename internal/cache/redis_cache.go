package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/rvmonterde003/kashpos/internal/domain"
)

type RedisEarningsCache struct {
	client *redis.Client
}

func NewRedisEarningsCache(addr string, password string, db int) *RedisEarningsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisEarningsCache{client: client}
}

func (c *RedisEarningsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisEarningsCache) Close() error {
	return c.client.Close()
}

func (c *RedisEarningsCache) Get(ctx context.Context, key string) (*domain.EarningsSummary, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.EarningsSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisEarningsCache) Set(ctx context.Context, key string, value *domain.EarningsSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
