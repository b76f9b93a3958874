package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"market_pulse_backend/models"
)

// RedisStore keeps snapshots in redis so several API processes can share
// what the single scheduler writes
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and verifies the connection
func NewRedisStore(ctx context.Context, opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client, prefix: "pricecache:"}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, snapshot models.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	// SET replaces the value atomically, readers see either the old or the new snapshot
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (models.Snapshot, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Snapshot{}, ErrMiss
		}
		return models.Snapshot{}, fmt.Errorf("redis get %s: %w", key, err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return models.Snapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", key, err)
	}
	return snapshot, nil
}

// Close closes the redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
