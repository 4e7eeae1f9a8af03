package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edusync/enrollment-gate/pkg/durable"
)

func newTestGate(t *testing.T, maxHolders int64, opts ...GateOption) (*Gate, *MemoryCapacityStore, *durable.Memory) {
	t.Helper()
	store := NewMemoryCapacityStore(nil)
	db := durable.NewMemory()
	db.AddResource(durable.Resource{ID: "course-1", Name: "distributed systems", MaxHolders: maxHolders})
	boot := NewBootstrapper(store, db, time.Minute, testLogger())
	opts = append([]GateOption{WithRetryDelay(time.Millisecond)}, opts...)
	return NewGate(store, boot, opts...), store, db
}

func TestGate_NoOverselling(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newTestGate(t, 5)

	const callers = 50
	outcomes := make([]Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = gate.Reserve(ctx, "course-1", fmt.Sprintf("student-%d", i))
		}(i)
	}
	wg.Wait()

	var granted, full int
	seenCounts := make(map[int64]bool)
	for _, out := range outcomes {
		switch out.Reason {
		case ReasonSuccess:
			granted++
			require.True(t, out.Granted)
			require.False(t, seenCounts[out.NewCount], "duplicate newCount %d", out.NewCount)
			seenCounts[out.NewCount] = true
			require.GreaterOrEqual(t, out.NewCount, int64(1))
			require.LessOrEqual(t, out.NewCount, int64(5))
		case ReasonCapacityExceeded:
			full++
			require.False(t, out.Granted)
		default:
			t.Fatalf("unexpected reason %s", out.Reason)
		}
	}
	require.Equal(t, 5, granted)
	require.Equal(t, 45, full)
}

func TestGate_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	gate, store, _ := newTestGate(t, 3)

	var wg sync.WaitGroup
	results := make(map[string]Outcome)
	var mu sync.Mutex
	for _, holder := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			out := gate.Reserve(ctx, "course-1", h)
			mu.Lock()
			results[h] = out
			mu.Unlock()
		}(holder)
	}
	wg.Wait()

	counts := make(map[int64]bool)
	for _, h := range []string{"A", "B", "C"} {
		require.Equal(t, ReasonSuccess, results[h].Reason)
		counts[results[h].NewCount] = true
	}
	require.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, counts)

	out := gate.Reserve(ctx, "course-1", "D")
	require.Equal(t, ReasonCapacityExceeded, out.Reason)

	gate.Release(ctx, "course-1", "A")
	rec, ok, err := store.Snapshot(ctx, "course-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), rec.CurrentCount)

	out = gate.Reserve(ctx, "course-1", "D")
	require.Equal(t, ReasonSuccess, out.Reason)
	require.Equal(t, int64(3), out.NewCount)
}

func TestGate_ReleaseFloor(t *testing.T) {
	ctx := context.Background()
	gate, store, _ := newTestGate(t, 3)

	// Materialize a record with zero holders, then release twice.
	out := gate.Reserve(ctx, "course-1", "A")
	require.True(t, out.Granted)
	gate.Release(ctx, "course-1", "A")
	gate.Release(ctx, "course-1", "A")
	gate.Release(ctx, "course-1", "ghost")

	rec, ok, err := store.Snapshot(ctx, "course-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0), rec.CurrentCount, "count must never go negative")
}

func TestGate_UnknownResource(t *testing.T) {
	gate, _, _ := newTestGate(t, 3)
	out := gate.Reserve(context.Background(), "no-such-course", "A")
	require.False(t, out.Granted)
	require.Equal(t, ReasonNotFound, out.Reason)
}

func TestGate_FailsClosedOnStoreError(t *testing.T) {
	store := &failingCapacityStore{err: errors.New("store down")}
	db := durable.NewMemory()
	db.AddResource(durable.Resource{ID: "course-1", MaxHolders: 3})
	boot := NewBootstrapper(store, db, time.Minute, testLogger())
	gate := NewGate(store, boot, WithRetryDelay(time.Millisecond))

	out := gate.Reserve(context.Background(), "course-1", "A")
	require.False(t, out.Granted)
	require.Equal(t, ReasonSystemError, out.Reason)
}

func TestGate_RetriesAfterExpiryRace(t *testing.T) {
	inner := NewMemoryCapacityStore(nil)
	store := &vanishingStore{CapacityStore: inner, missing: 1}
	db := durable.NewMemory()
	db.AddResource(durable.Resource{ID: "course-1", MaxHolders: 3})
	boot := NewBootstrapper(store, db, time.Minute, testLogger())
	gate := NewGate(store, boot, WithRetryDelay(time.Millisecond))

	out := gate.Reserve(context.Background(), "course-1", "A")
	require.True(t, out.Granted, "one missing round must be absorbed by the retry budget")
	require.Equal(t, int64(1), out.NewCount)
}

func TestGate_FailsClosedWhenRecordNeverAppears(t *testing.T) {
	inner := NewMemoryCapacityStore(nil)
	store := &vanishingStore{CapacityStore: inner, missing: 100}
	db := durable.NewMemory()
	db.AddResource(durable.Resource{ID: "course-1", MaxHolders: 3})
	boot := NewBootstrapper(store, db, time.Minute, testLogger())
	gate := NewGate(store, boot, WithRetryDelay(time.Millisecond))

	out := gate.Reserve(context.Background(), "course-1", "A")
	require.False(t, out.Granted)
	require.Equal(t, ReasonNotFound, out.Reason)
	require.Equal(t, 3, store.acquires, "retry budget is three attempts")
}

func TestGate_OnChangeHook(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []CapacityRecord
	)
	hook := func(ctx context.Context, rec CapacityRecord) {
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()
	}
	gate, _, _ := newTestGate(t, 3, WithOnChange(hook))

	ctx := context.Background()
	gate.Reserve(ctx, "course-1", "A")
	gate.Release(ctx, "course-1", "A")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	require.Equal(t, int64(1), seen[0].CurrentCount)
	require.Equal(t, int64(0), seen[1].CurrentCount)
	require.Equal(t, int64(3), seen[0].MaxCount)
}

// failingCapacityStore errors on every operation.
type failingCapacityStore struct {
	err error
}

func (f *failingCapacityStore) TryAcquire(ctx context.Context, resourceID, holderID string) (AcquireResult, error) {
	return AcquireResult{}, f.err
}

func (f *failingCapacityStore) ReleaseOne(ctx context.Context, resourceID, holderID string) (ReleaseResult, error) {
	return ReleaseResult{}, f.err
}

func (f *failingCapacityStore) InitIfAbsent(ctx context.Context, rec CapacityRecord, ttl time.Duration) (bool, error) {
	return false, f.err
}

func (f *failingCapacityStore) Snapshot(ctx context.Context, resourceID string) (CapacityRecord, bool, error) {
	return CapacityRecord{}, false, f.err
}

func (f *failingCapacityStore) ActiveResources(ctx context.Context) ([]string, error) {
	return nil, f.err
}

func (f *failingCapacityStore) ForceCount(ctx context.Context, resourceID string, count int64, ttl time.Duration) error {
	return f.err
}

// vanishingStore reports the record missing for the first n acquires, as if
// the TTL expired between the bootstrap probe and the acquire.
type vanishingStore struct {
	CapacityStore
	missing  int
	acquires int
}

func (v *vanishingStore) TryAcquire(ctx context.Context, resourceID, holderID string) (AcquireResult, error) {
	v.acquires++
	if v.missing > 0 {
		v.missing--
		return AcquireResult{Status: AcquireMissing}, nil
	}
	return v.CapacityStore.TryAcquire(ctx, resourceID, holderID)
}
