package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tillbook/backend/internal/domain"
)

const productsKey = "tillbook:products:v1"

type RedisProductCache struct {
	client *redis.Client
	key    string
}

func NewRedisProductCache(addr string, password string, db int) *RedisProductCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisProductCache{client: client, key: productsKey}
}

func (c *RedisProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProductCache) Close() error {
	return c.client.Close()
}

func (c *RedisProductCache) GetProducts(ctx context.Context) ([]domain.Product, bool, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var products []domain.Product
	if err := json.Unmarshal(val, &products); err != nil {
		return nil, false, err
	}
	return products, true, nil
}

func (c *RedisProductCache) SetProducts(ctx context.Context, products []domain.Product, ttl time.Duration) error {
	if products == nil {
		products = []domain.Product{}
	}
	payload, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, ttl).Err()
}

func (c *RedisProductCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
