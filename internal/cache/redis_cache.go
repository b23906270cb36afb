package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"laroza/backend/internal/domain"
)

const productKeyPrefix = "products:status:"

type RedisProductCache struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisProductCache(client *redis.Client) *RedisProductCache {
	return &RedisProductCache{client: client}
}

func (c *RedisProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductCache) Get(ctx context.Context, storeType string) ([]domain.ProductWithInventory, bool, error) {
	val, err := c.client.Get(ctx, productKey(storeType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var products []domain.ProductWithInventory
	if err := json.Unmarshal([]byte(val), &products); err != nil {
		return nil, false, err
	}
	return products, true, nil
}

func (c *RedisProductCache) Set(ctx context.Context, storeType string, value []domain.ProductWithInventory, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productKey(storeType), payload, ttl).Err()
}

func (c *RedisProductCache) Invalidate(ctx context.Context) error {
	keys := []string{productKey("")}
	for _, storeType := range domain.StoreTypes {
		keys = append(keys, productKey(storeType))
	}
	return c.client.Del(ctx, keys...).Err()
}

func productKey(storeType string) string {
	if storeType == "" {
		return productKeyPrefix + "all"
	}
	return productKeyPrefix + storeType
}
