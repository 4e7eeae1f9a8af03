package ranking

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memDim struct {
	scores    map[string]float64
	expiresAt time.Time
}

// MemoryRankStore is an in-process RankStore with the same TTL and
// ordering semantics as the Redis backend.
type MemoryRankStore struct {
	mu   sync.Mutex
	dims map[Dimension]*memDim
	now  func() time.Time
}

// NewMemoryRankStore constructs an empty store; now may be nil for
// time.Now.
func NewMemoryRankStore(now func() time.Time) *MemoryRankStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRankStore{dims: make(map[Dimension]*memDim), now: now}
}

// live returns the dimension's set, dropping it first if expired.
// Callers must hold mu.
func (m *MemoryRankStore) live(dim Dimension) *memDim {
	d, ok := m.dims[dim]
	if !ok {
		return nil
	}
	if !d.expiresAt.IsZero() && !m.now().Before(d.expiresAt) {
		delete(m.dims, dim)
		return nil
	}
	return d
}

func (m *MemoryRankStore) ensure(dim Dimension) *memDim {
	d := m.live(dim)
	if d == nil {
		d = &memDim{scores: make(map[string]float64)}
		m.dims[dim] = d
	}
	return d
}

func (m *MemoryRankStore) Score(ctx context.Context, dim Dimension, resourceID string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.live(dim)
	if d == nil {
		return 0, false, nil
	}
	score, ok := d.scores[resourceID]
	return score, ok, nil
}

func (m *MemoryRankStore) Add(ctx context.Context, dim Dimension, resourceID string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensure(dim).scores[resourceID] = score
	return nil
}

func (m *MemoryRankStore) Card(ctx context.Context, dim Dimension) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.live(dim)
	if d == nil {
		return 0, nil
	}
	return int64(len(d.scores)), nil
}

func (m *MemoryRankStore) Min(ctx context.Context, dim Dimension) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.live(dim)
	if d == nil || len(d.scores) == 0 {
		return Entry{}, false, nil
	}
	entries := sorted(d.scores)
	last := entries[len(entries)-1]
	return last, true, nil
}

func (m *MemoryRankStore) Remove(ctx context.Context, dim Dimension, resourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d := m.live(dim); d != nil {
		delete(d.scores, resourceID)
	}
	return nil
}

func (m *MemoryRankStore) TopN(ctx context.Context, dim Dimension, n int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.live(dim)
	if d == nil || n <= 0 {
		return nil, nil
	}
	entries := sorted(d.scores)
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (m *MemoryRankStore) TrimToSize(ctx context.Context, dim Dimension, k int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.live(dim)
	if d == nil || len(d.scores) <= k {
		return nil
	}
	entries := sorted(d.scores)
	for _, e := range entries[k:] {
		delete(d.scores, e.ResourceID)
	}
	return nil
}

func (m *MemoryRankStore) Expire(ctx context.Context, dim Dimension, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d := m.live(dim); d != nil {
		d.expiresAt = m.now().Add(ttl)
	}
	return nil
}

// sorted returns entries by score descending, ties broken by id so
// tests see a stable order.
func sorted(scores map[string]float64) []Entry {
	entries := make([]Entry, 0, len(scores))
	for id, score := range scores {
		entries = append(entries, Entry{ResourceID: id, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ResourceID < entries[j].ResourceID
	})
	return entries
}
