package writebehind

import (
	"context"
	"sync"
	"time"
)

// MemoryQueueStore is an in-process QueueStore for tests and single-instance
// deployments. Result TTLs are honored against the injected clock.
type MemoryQueueStore struct {
	mu      sync.Mutex
	entries []Entry
	results map[string]memResult
	now     func() time.Time
}

type memResult struct {
	result    Result
	expiresAt time.Time
}

// NewMemoryQueueStore constructs an empty store; now may be nil for
// time.Now.
func NewMemoryQueueStore(now func() time.Time) *MemoryQueueStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueueStore{
		results: make(map[string]memResult),
		now:     now,
	}
}

// Push appends the entry to the tail.
func (m *MemoryQueueStore) Push(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Pop removes and returns the head entry.
func (m *MemoryQueueStore) Pop(ctx context.Context) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return Entry{}, false, nil
	}
	entry := m.entries[0]
	m.entries = m.entries[1:]
	return entry, true, nil
}

// Unpop returns the entry to the head.
func (m *MemoryQueueStore) Unpop(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]Entry{entry}, m.entries...)
	return nil
}

// Len reports the number of queued entries.
func (m *MemoryQueueStore) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

// SetResult stores the result with a TTL.
func (m *MemoryQueueStore) SetResult(ctx context.Context, result Result, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.results[result.QueueID] = memResult{result: result, expiresAt: expires}
	return nil
}

// Result fetches a live result record.
func (m *MemoryQueueStore) Result(ctx context.Context, queueID string) (Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.results[queueID]
	if !ok {
		return Result{}, false, nil
	}
	if !stored.expiresAt.IsZero() && !m.now().Before(stored.expiresAt) {
		delete(m.results, queueID)
		return Result{}, false, nil
	}
	return stored.result, true, nil
}
