// Package store is the persistence layer of the application: a flat JSON
// key-value namespace backed by Redis. Each persisted collection lives under
// a single key; a missing key means "empty", never an error.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Persisted keys. They mirror the browser-local storage the tool replaces.
const (
	KeyClients         = "clients-catalog"
	KeyProducts        = "products-catalog"
	KeyQuoteCounter    = "quote-counter"
	KeyFrequentClients = "frequent-clients"
)

// KV reads and writes JSON-serialised values under fixed keys.
type KV struct {
	client *redis.Client
}

// New constructs a KV store over the provided Redis client.
func New(client *redis.Client) *KV {
	return &KV{client: client}
}

// GetJSON unmarshals the value under key into dst. It reports whether the key existed.
func (s *KV) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if s == nil || s.client == nil || key == "" {
		return false, nil
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("store get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it under key with no expiry.
func (s *KV) SetJSON(ctx context.Context, key string, v any) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("store set %s: %w", key, err)
	}
	return nil
}

// NextCounter atomically increments the integer stored under key and returns
// the new value. An absent key counts as zero, so the first call yields 1.
// The increment is persisted before the value is handed to the caller.
func (s *KV) NextCounter(ctx context.Context, key string) (int64, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("store not configured")
	}
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("store incr %s: %w", key, err)
	}
	return n, nil
}

// Ping probes the underlying Redis connection.
func (s *KV) Ping(ctx context.Context, timeout time.Duration) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store not configured")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.client.Ping(ctx).Err()
}
