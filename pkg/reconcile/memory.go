package reconcile

import (
	"context"
	"sync"
	"time"
)

type memLock struct {
	owner     string
	expiresAt time.Time
}

// MemoryLockStore is an in-process LockStore for tests and single-instance
// deployments.
type MemoryLockStore struct {
	mu    sync.Mutex
	locks map[string]memLock
	now   func() time.Time
}

// NewMemoryLockStore constructs an empty store; now may be nil for time.Now.
func NewMemoryLockStore(now func() time.Time) *MemoryLockStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryLockStore{locks: make(map[string]memLock), now: now}
}

// Acquire takes the lock if absent or expired.
func (m *MemoryLockStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[key]
	if ok && m.now().Before(lock.expiresAt) {
		return false, nil
	}
	m.locks[key] = memLock{owner: owner, expiresAt: m.now().Add(ttl)}
	return true, nil
}

// Release drops the lock only when the live owner matches.
func (m *MemoryLockStore) Release(ctx context.Context, key, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[key]
	if !ok || !m.now().Before(lock.expiresAt) || lock.owner != owner {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}
