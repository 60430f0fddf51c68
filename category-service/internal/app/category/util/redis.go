package util

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grandbazar/category-service/internal/app/category/entity"
	"grandbazar/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const treeCacheKey = "categories:tree"

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создает клиент Redis для кеширования дерева категорий
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// SetTree кеширует собранное дерево категорий
func (r *RedisClient) SetTree(ctx context.Context, tree []entity.CategoryTreeNode, ttl time.Duration) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal category tree: %w", err)
	}

	if err := r.client.Set(ctx, treeCacheKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set category tree in cache: %w", err)
	}

	return nil
}

// GetTree получает дерево категорий из кеша
// Возвращает nil, nil при отсутствии ключа (cache miss)
func (r *RedisClient) GetTree(ctx context.Context) ([]entity.CategoryTreeNode, error) {
	data, err := r.client.Get(ctx, treeCacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			metrics.RecordCacheMiss()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get category tree from cache: %w", err)
	}

	var tree []entity.CategoryTreeNode
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal category tree: %w", err)
	}

	metrics.RecordCacheHit()
	return tree, nil
}

// DeleteTree инвалидирует кеш дерева после структурной записи
func (r *RedisClient) DeleteTree(ctx context.Context) error {
	if err := r.client.Del(ctx, treeCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to delete category tree from cache: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
