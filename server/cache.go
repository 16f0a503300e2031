package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/getcharzp/go-sam"
	"github.com/getcharzp/go-sam/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResultCache 分割结果缓存, 未命中时返回 nil, nil
type ResultCache interface {
	Get(ctx context.Context, key string) (*SegmentResult, error)
	Set(ctx context.Context, key string, result *SegmentResult) error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg *config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 从缓存获取分割结果
func (c *RedisCache) Get(ctx context.Context, key string) (*SegmentResult, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 缓存未命中
		}
		return nil, err
	}

	var result SegmentResult
	if err := json.Unmarshal(data, &result); err != nil {
		sam.Logger().Error("failed to unmarshal segment result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return &result, nil
}

// Set 保存分割结果
func (c *RedisCache) Set(ctx context.Context, key string, result *SegmentResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(key), data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheKey(key string) string {
	return "sam:" + key
}
