package reservebase

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements Backend on a Redis server, storing each document
// as a plain string value under its opaque key. This is the production
// engine: every operation is an independent network round trip and many can
// be in flight per process.
type RedisBackend struct {
	client     *redis.Client
	ownsClient bool
}

// NewRedisBackend creates a backend over an existing Redis client.
// The caller keeps ownership of the client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// NewRedisBackendWithOwnedClient creates a backend that closes the
// client on Close()
func NewRedisBackendWithOwnedClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, ownsClient: true}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, data []byte) error {
	return b.client.Set(ctx, key, data, 0).Err()
}

func (b *RedisBackend) PutIfAbsent(ctx context.Context, key string, data []byte) error {
	// SET NX gives an atomic claim, unlike the filesystem's lock-and-check
	ok, err := b.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return WithContext(ErrAlreadyExists, map[string]interface{}{"key": key})
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	n, err := b.client.Del(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Close() error {
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}
