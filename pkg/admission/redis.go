package admission

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed acquire.lua
var acquireScript string

//go:embed release.lua
var releaseScript string

//go:embed init.lua
var initScript string

// RedisCapacityStore implements CapacityStore over Redis. Each resource is
// one hash under the configured prefix, holding the current count, the max
// count and the resource name. The check-and-mutate operations run as Lua
// scripts so they are indivisible on the server.
type RedisCapacityStore struct {
	client     *redis.Client
	prefix     string
	timeout    time.Duration
	acquireSHA string
	releaseSHA string
	initSHA    string
}

// RedisOption configures a RedisCapacityStore.
type RedisOption func(*RedisCapacityStore)

// WithPrefix overrides the default "capacity:" key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisCapacityStore) { s.prefix = prefix }
}

// WithTimeout bounds each store operation; zero disables the bound.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisCapacityStore) { s.timeout = d }
}

// NewRedisCapacityStore pings the client and loads the admission scripts.
func NewRedisCapacityStore(client *redis.Client, opts ...RedisOption) (*RedisCapacityStore, error) {
	store := &RedisCapacityStore{
		client: client,
		prefix: "capacity:",
	}
	for _, opt := range opts {
		opt(store)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	for _, load := range []struct {
		script string
		sha    *string
	}{
		{acquireScript, &store.acquireSHA},
		{releaseScript, &store.releaseSHA},
		{initScript, &store.initSHA},
	} {
		sha, err := client.ScriptLoad(ctx, load.script).Result()
		if err != nil {
			return nil, fmt.Errorf("load script: %w", err)
		}
		*load.sha = sha
	}
	return store, nil
}

func (s *RedisCapacityStore) key(resourceID string) string {
	return s.prefix + resourceID
}

func (s *RedisCapacityStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// TryAcquire runs the acquire script against the resource's hash.
func (s *RedisCapacityStore) TryAcquire(ctx context.Context, resourceID, holderID string) (AcquireResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	status, count, err := s.evalDecision(ctx, s.acquireSHA, resourceID, holderID)
	if err != nil {
		return AcquireResult{}, err
	}
	switch status {
	case "GRANTED":
		return AcquireResult{Status: AcquireGranted, Count: count}, nil
	case "FULL":
		return AcquireResult{Status: AcquireFull, Count: count}, nil
	case "MISSING":
		return AcquireResult{Status: AcquireMissing}, nil
	default:
		return AcquireResult{}, fmt.Errorf("unexpected acquire status %q", status)
	}
}

// ReleaseOne runs the release script against the resource's hash.
func (s *RedisCapacityStore) ReleaseOne(ctx context.Context, resourceID, holderID string) (ReleaseResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	status, count, err := s.evalDecision(ctx, s.releaseSHA, resourceID, holderID)
	if err != nil {
		return ReleaseResult{}, err
	}
	switch status {
	case "RELEASED":
		return ReleaseResult{Status: ReleaseDone, Count: count}, nil
	case "FLOOR":
		return ReleaseResult{Status: ReleaseAtFloor, Count: count}, nil
	case "MISSING":
		return ReleaseResult{Status: ReleaseMissing}, nil
	default:
		return ReleaseResult{}, fmt.Errorf("unexpected release status %q", status)
	}
}

func (s *RedisCapacityStore) evalDecision(ctx context.Context, sha, resourceID, holderID string) (string, int64, error) {
	result, err := s.client.EvalSha(ctx, sha, []string{s.key(resourceID)}, holderID).Result()
	if err != nil {
		return "", 0, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return "", 0, errors.New("invalid lua response format")
	}
	status, _ := values[1].(string)
	return status, toInt64(values[2]), nil
}

// InitIfAbsent runs the init script; it never overwrites an existing count.
func (s *RedisCapacityStore) InitIfAbsent(ctx context.Context, rec CapacityRecord, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	created, err := s.client.EvalSha(ctx, s.initSHA, []string{s.key(rec.ResourceID)},
		rec.CurrentCount,
		rec.MaxCount,
		rec.Name,
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return false, err
	}
	return toInt64(created) == 1, nil
}

// Snapshot reads the record without mutating it.
func (s *RedisCapacityStore) Snapshot(ctx context.Context, resourceID string) (CapacityRecord, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields, err := s.client.HMGet(ctx, s.key(resourceID), "current", "max", "name").Result()
	if err != nil {
		return CapacityRecord{}, false, err
	}
	if len(fields) != 3 || fields[0] == nil || fields[1] == nil {
		return CapacityRecord{}, false, nil
	}
	rec := CapacityRecord{
		ResourceID:   resourceID,
		CurrentCount: toInt64(fields[0]),
		MaxCount:     toInt64(fields[1]),
	}
	if name, ok := fields[2].(string); ok {
		rec.Name = name
	}
	return rec, true, nil
}

// ActiveResources scans for capacity record keys and strips the prefix.
func (s *RedisCapacityStore) ActiveResources(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

// ForceCount overwrites the count and refreshes the record's TTL.
func (s *RedisCapacityStore) ForceCount(ctx context.Context, resourceID string, count int64, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.key(resourceID)
	if err := s.client.HSet(ctx, key, "current", count).Err(); err != nil {
		return err
	}
	return s.client.PExpire(ctx, key, ttl).Err()
}

func toInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
