package redis

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin wrapper around go-redis used for presence tracking
// and health checks.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the address in REDIS_URL (default localhost).
func NewRedisClient() *RedisClient {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	return NewRedisClientWithAddr(addr)
}

// NewRedisClientWithAddr connects to an explicit address.
func NewRedisClientWithAddr(addr string) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password by default
		DB:       0,  // use default DB
	})
	return &RedisClient{client: client}
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisClient) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists reports whether the key is present.
func (r *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Ping verifies the connection, used by health checks.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
