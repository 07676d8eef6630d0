package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docqa/llm"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the latest session record in Redis
const DefaultRedisKey = "docqa:latest_session"

// RedisRegistry keeps the latest session as a JSON value under one key
type RedisRegistry struct {
	client redis.Cmdable
	key    string
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry creates a registry on an existing client
func NewRedisRegistry(client redis.Cmdable, key string) *RedisRegistry {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRegistry{client: client, key: key}
}

// Register implements Registry. A single SET replaces the previous record.
func (r *RedisRegistry) Register(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store session record: %w", err)
	}
	return nil
}

// Resolve implements Registry
func (r *RedisRegistry) Resolve(ctx context.Context) (Record, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("%w: no session registered under %s", llm.ErrNotFound, r.key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	if rec.ID == "" {
		return Record{}, fmt.Errorf("%w: empty record under %s", llm.ErrNotFound, r.key)
	}
	return rec, nil
}

// Clear implements Registry
func (r *RedisRegistry) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}
