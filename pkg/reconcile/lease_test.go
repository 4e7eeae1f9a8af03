package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLease_MutualExclusion(t *testing.T) {
	store := NewMemoryLockStore(nil)
	lease := NewLease(store, "lock:test", time.Minute)

	owner, ok, err := lease.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, owner)

	_, ok, err = lease.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "second acquire must lose while lease is live")

	released, err := lease.Release(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, released)

	_, ok, err = lease.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "lease must be free again after release")
}

func TestLease_ReleaseRequiresOwner(t *testing.T) {
	store := NewMemoryLockStore(nil)
	lease := NewLease(store, "lock:test", time.Minute)

	owner, ok, err := lease.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	released, err := lease.Release(context.Background(), "some-other-owner")
	require.NoError(t, err)
	require.False(t, released, "a stranger's token must not release the lease")

	released, err = lease.Release(context.Background(), owner)
	require.NoError(t, err)
	require.True(t, released)
}

func TestLease_ExpiryAllowsReacquire(t *testing.T) {
	var mu sync.Mutex
	current := time.Now()
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	store := NewMemoryLockStore(now)
	lease := NewLease(store, "lock:test", 30*time.Second)

	staleOwner, ok, err := lease.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mu.Lock()
	current = current.Add(time.Minute)
	mu.Unlock()

	_, ok, err = lease.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "expired lease must be reacquirable")

	released, err := lease.Release(context.Background(), staleOwner)
	require.NoError(t, err)
	require.False(t, released, "stale owner must not release the new holder's lease")
}
