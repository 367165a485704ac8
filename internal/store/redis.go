// Package store provides storage backends for LaunchPipe.
//
// This file implements a Redis-backed snapshot store, used when parameter
// snapshots should be shared across LaunchPipe instances.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotKeyPrefix namespaces snapshot keys in Redis.
const RedisSnapshotKeyPrefix = "launchpipe:snapshot:"

// RedisConfig describes a Redis connection.
type RedisConfig struct {
	URL          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// New parses the URL, applies timeouts and pings the server.
func (c RedisConfig) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisSnapshotStore keeps parameter snapshots in Redis strings.
// A zero ttl keeps snapshots until they are deleted.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore wraps an existing client.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func redisSnapshotKey(origin, key string) string {
	return RedisSnapshotKeyPrefix + origin + ":" + key
}

func (s *RedisSnapshotStore) SaveSnapshot(ctx context.Context, origin, key, data string) error {
	if err := s.client.Set(ctx, redisSnapshotKey(origin, key), data, s.ttl).Err(); err != nil {
		slog.Error("RedisSnapshotStore SaveSnapshot failed", "error", err, "origin", origin, "key", key)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) LoadSnapshot(ctx context.Context, origin, key string) (string, bool, error) {
	data, err := s.client.Get(ctx, redisSnapshotKey(origin, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		slog.Error("RedisSnapshotStore LoadSnapshot failed", "error", err, "origin", origin, "key", key)
		return "", false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, true, nil
}

func (s *RedisSnapshotStore) DeleteSnapshot(ctx context.Context, origin, key string) error {
	if err := s.client.Del(ctx, redisSnapshotKey(origin, key)).Err(); err != nil {
		slog.Error("RedisSnapshotStore DeleteSnapshot failed", "error", err, "origin", origin, "key", key)
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
