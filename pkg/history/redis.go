// Copyright 2025 Vidlift Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultKey is the redis list holding upload records, newest first.
const defaultKey = "vidlift:history"

// RedisSink stores records in a capped redis list so that history is shared
// across processes and survives restarts.
type RedisSink struct {
	client *redis.Client
	key    string
	limit  int64
}

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Key overrides the default list key.
	Key string

	// Limit caps retained records; zero means DefaultLimit.
	Limit int
}

func NewRedisSink(cfg RedisConfig) *RedisSink {
	if cfg.Key == "" {
		cfg.Key = defaultKey
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:   cfg.Key,
		limit: int64(cfg.Limit),
	}
}

// Ping verifies connectivity at startup.
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("history: redis ping: %w", err)
	}
	return nil
}

func (s *RedisSink) Append(ctx context.Context, rec Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, blob)
	pipe.LTrim(ctx, s.key, 0, s.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

func (s *RedisSink) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = int(s.limit)
	}
	blobs, err := s.client.LRange(ctx, s.key, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: range: %w", err)
	}

	out := make([]Record, 0, len(blobs))
	for _, b := range blobs {
		var rec Record
		if err := json.Unmarshal([]byte(b), &rec); err != nil {
			// Skip records written by incompatible versions.
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
