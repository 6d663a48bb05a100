package search

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"homecook/videosearch/internal/domain"
)

const redisCachePrefix = "videosearch:cache:"

// RedisCacheBackend stores ranked responses in Redis, msgpack encoded.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) (domain.RecipeResponse, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RecipeResponse{}, false, nil
		}
		return domain.RecipeResponse{}, false, err
	}
	var resp domain.RecipeResponse
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return domain.RecipeResponse{}, false, err
	}
	return resp, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, response domain.RecipeResponse, ttl time.Duration) error {
	data, err := msgpack.Marshal(response)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCacheBackend) Close() error {
	return r.client.Close()
}
