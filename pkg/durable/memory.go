package durable

import (
	"context"
	"sort"
	"sync"
)

// Memory implements Store in process memory.
//
// It is safe for concurrent use and is the recommended stand-in for unit
// tests and local development; production deployments wire an adapter over
// their real record store instead.
type Memory struct {
	mu        sync.Mutex
	resources map[string]Resource
	holders   map[string]map[string]bool // resourceID -> holderID set
	failErr   error
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		resources: make(map[string]Resource),
		holders:   make(map[string]map[string]bool),
	}
}

// AddResource registers a resource definition.
func (m *Memory) AddResource(res Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[res.ID] = res
	if m.holders[res.ID] == nil {
		m.holders[res.ID] = make(map[string]bool)
	}
}

// SeedHolder records a holder without going through InsertIfAbsent.
func (m *Memory) SeedHolder(holderID, resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holders[resourceID] == nil {
		m.holders[resourceID] = make(map[string]bool)
	}
	m.holders[resourceID][holderID] = true
}

// RemoveHolder deletes a holder record if present.
func (m *Memory) RemoveHolder(holderID, resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holders[resourceID], holderID)
}

// SetFailing makes every subsequent operation return err; pass nil to heal.
func (m *Memory) SetFailing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Resource returns the resource definition, or ErrNotFound.
func (m *Memory) Resource(ctx context.Context, id string) (Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return Resource{}, m.failErr
	}
	res, ok := m.resources[id]
	if !ok {
		return Resource{}, ErrNotFound
	}
	return res, nil
}

// CountActiveHolders returns the number of recorded holders for a resource.
func (m *Memory) CountActiveHolders(ctx context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return 0, m.failErr
	}
	return int64(len(m.holders[id])), nil
}

// InsertIfAbsent records the pair, returning false if it already exists.
func (m *Memory) InsertIfAbsent(ctx context.Context, holderID, resourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	set := m.holders[resourceID]
	if set == nil {
		set = make(map[string]bool)
		m.holders[resourceID] = set
	}
	if set[holderID] {
		return false, nil
	}
	set[holderID] = true
	return true, nil
}

// TopByActiveHolders returns resources ordered by holder count descending.
// Ties break on resource id so results are deterministic.
func (m *Memory) TopByActiveHolders(ctx context.Context, limit int, exclude map[string]bool) ([]ResourceCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	counts := make([]ResourceCount, 0, len(m.resources))
	for id := range m.resources {
		if exclude[id] {
			continue
		}
		counts = append(counts, ResourceCount{ResourceID: id, Holders: int64(len(m.holders[id]))})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Holders != counts[j].Holders {
			return counts[i].Holders > counts[j].Holders
		}
		return counts[i].ResourceID < counts[j].ResourceID
	})
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}
