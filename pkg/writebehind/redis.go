package writebehind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueueStore implements QueueStore over a Redis list plus per-result
// string keys. Entries are JSON on the wire; LPOP gives the atomic pop.
type RedisQueueStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisQueueStore.
type RedisOption func(*RedisQueueStore)

// WithPrefix overrides the default "writebehind:" key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisQueueStore) { s.prefix = prefix }
}

// NewRedisQueueStore pings the client and returns the store.
func NewRedisQueueStore(client *redis.Client, opts ...RedisOption) (*RedisQueueStore, error) {
	store := &RedisQueueStore{client: client, prefix: "writebehind:"}
	for _, opt := range opts {
		opt(store)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, nil
}

func (s *RedisQueueStore) queueKey() string {
	return s.prefix + "queue"
}

func (s *RedisQueueStore) resultKey(queueID string) string {
	return s.prefix + "result:" + queueID
}

// Push appends the entry to the queue tail.
func (s *RedisQueueStore) Push(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return s.client.RPush(ctx, s.queueKey(), data).Err()
}

// Pop removes and returns the head entry. The LPOP is the serialization
// point: two workers can never receive the same entry.
func (s *RedisQueueStore) Pop(ctx context.Context) (Entry, bool, error) {
	data, err := s.client.LPop(ctx, s.queueKey()).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return entry, true, nil
}

// Unpop returns the entry to the queue head so the next drain retries it.
func (s *RedisQueueStore) Unpop(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return s.client.LPush(ctx, s.queueKey(), data).Err()
}

// Len reports the number of queued entries.
func (s *RedisQueueStore) Len(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.queueKey()).Result()
}

// SetResult stores the result record under its queue id with a TTL.
func (s *RedisQueueStore) SetResult(ctx context.Context, result Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.client.Set(ctx, s.resultKey(result.QueueID), data, ttl).Err()
}

// Result fetches the result record for a queue id.
func (s *RedisQueueStore) Result(ctx context.Context, queueID string) (Result, bool, error) {
	data, err := s.client.Get(ctx, s.resultKey(queueID)).Result()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return Result{}, false, fmt.Errorf("decode result: %w", err)
	}
	return result, true, nil
}
