package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-guard/internal/models"
	"github.com/aman-churiwal/api-guard/internal/storage"
	"github.com/redis/go-redis/v9"
)

// RedisCounterStore keeps counter records in redis for deployments that
// want counters shared across guard instances. Records are JSON values
// expiring shortly after their window (or block) ends.
type RedisCounterStore struct {
	redis *storage.RedisClient
}

func NewRedisCounterStore(client *storage.RedisClient) *RedisCounterStore {
	return &RedisCounterStore{redis: client}
}

func (s *RedisCounterStore) Get(ctx context.Context, key CounterKey) (*models.RateLimitCounter, error) {
	data, err := s.redis.Get(ctx, redisCounterKey(key))
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var counter models.RateLimitCounter
	if err := json.Unmarshal([]byte(data), &counter); err != nil {
		return nil, fmt.Errorf("corrupt counter record: %w", err)
	}

	return &counter, nil
}

func (s *RedisCounterStore) Upsert(ctx context.Context, counter *models.RateLimitCounter) error {
	data, err := json.Marshal(counter)
	if err != nil {
		return err
	}

	key := CounterKey{
		Identifier: counter.Identifier,
		Endpoint:   counter.Endpoint,
		Method:     counter.Method,
	}

	// Keep the record alive until the window ends, or the block expires,
	// whichever is later, plus slack for clock skew.
	horizon := counter.ResetAt
	if counter.BlockedUntil != nil && counter.BlockedUntil.After(horizon) {
		horizon = *counter.BlockedUntil
	}
	ttl := time.Until(horizon) + time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}

	return s.redis.Set(ctx, redisCounterKey(key), data, ttl)
}

func redisCounterKey(key CounterKey) string {
	endpoint, method := key.Endpoint, key.Method
	if endpoint == "" {
		endpoint = "_all"
	}
	if method == "" {
		method = "_all"
	}
	return fmt.Sprintf("ratelimit:counter:%s:%s:%s", key.Identifier, endpoint, method)
}
