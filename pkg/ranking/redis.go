package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRankPrefix = "ranking:"

// RedisRankStore keeps each dimension in a Redis sorted set so every
// instance serves the same leaderboard.
type RedisRankStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisRankStore.
type RedisOption func(*RedisRankStore)

// WithPrefix overrides the default "ranking:" key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisRankStore) { s.prefix = prefix }
}

// NewRedisRankStore verifies connectivity and returns the store.
func NewRedisRankStore(client *redis.Client, opts ...RedisOption) (*RedisRankStore, error) {
	s := &RedisRankStore{client: client, prefix: defaultRankPrefix}
	for _, opt := range opts {
		opt(s)
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *RedisRankStore) key(dim Dimension) string {
	return s.prefix + string(dim)
}

func (s *RedisRankStore) Score(ctx context.Context, dim Dimension, resourceID string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, s.key(dim), resourceID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s: %w", dim, err)
	}
	return score, true, nil
}

func (s *RedisRankStore) Add(ctx context.Context, dim Dimension, resourceID string, score float64) error {
	err := s.client.ZAdd(ctx, s.key(dim), redis.Z{Score: score, Member: resourceID}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", dim, err)
	}
	return nil
}

func (s *RedisRankStore) Card(ctx context.Context, dim Dimension) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key(dim)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", dim, err)
	}
	return n, nil
}

func (s *RedisRankStore) Min(ctx context.Context, dim Dimension) (Entry, bool, error) {
	members, err := s.client.ZRangeWithScores(ctx, s.key(dim), 0, 0).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("zrange %s: %w", dim, err)
	}
	if len(members) == 0 {
		return Entry{}, false, nil
	}
	id, _ := members[0].Member.(string)
	return Entry{ResourceID: id, Score: members[0].Score}, true, nil
}

func (s *RedisRankStore) Remove(ctx context.Context, dim Dimension, resourceID string) error {
	if err := s.client.ZRem(ctx, s.key(dim), resourceID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", dim, err)
	}
	return nil
}

func (s *RedisRankStore) TopN(ctx context.Context, dim Dimension, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := s.client.ZRevRangeWithScores(ctx, s.key(dim), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s: %w", dim, err)
	}
	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		id, _ := m.Member.(string)
		entries = append(entries, Entry{ResourceID: id, Score: m.Score})
	}
	return entries, nil
}

func (s *RedisRankStore) TrimToSize(ctx context.Context, dim Dimension, k int) error {
	// Keep the k highest scores; everything below rank -(k+1) goes.
	err := s.client.ZRemRangeByRank(ctx, s.key(dim), 0, int64(-(k + 1))).Err()
	if err != nil {
		return fmt.Errorf("zremrangebyrank %s: %w", dim, err)
	}
	return nil
}

func (s *RedisRankStore) Expire(ctx context.Context, dim Dimension, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.key(dim), ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", dim, err)
	}
	return nil
}
