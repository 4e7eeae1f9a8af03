package reconcile

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed unlock.lua
var unlockScript string

// RedisLockStore implements LockStore with SET NX for acquisition and a
// conditional-delete script for release.
type RedisLockStore struct {
	client    *redis.Client
	unlockSHA string
}

// NewRedisLockStore pings the client and loads the unlock script.
func NewRedisLockStore(client *redis.Client) (*RedisLockStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	sha, err := client.ScriptLoad(ctx, unlockScript).Result()
	if err != nil {
		return nil, fmt.Errorf("load unlock script: %w", err)
	}
	return &RedisLockStore{client: client, unlockSHA: sha}, nil
}

// Acquire sets the key to the owner token if absent.
func (s *RedisLockStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, owner, ttl).Result()
}

// Release deletes the key only while the stored token matches owner.
func (s *RedisLockStore) Release(ctx context.Context, key, owner string) (bool, error) {
	result, err := s.client.EvalSha(ctx, s.unlockSHA, []string{key}, owner).Result()
	if err != nil {
		return false, err
	}
	deleted, _ := result.(int64)
	return deleted == 1, nil
}
