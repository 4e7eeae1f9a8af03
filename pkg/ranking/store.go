// Package ranking maintains small bounded leaderboards over resource
// fill levels.
//
// # Overview
//
// Each dimension (most holders, highest fill rate) is a bounded ordered
// set of at most Size entries, updated opportunistically whenever an
// admission decision changes a count. The cache serves only the first
// page of a sorted view; deeper pages are computed straight from the
// durable store by the caller. A short TTL forces periodic full rebuild
// so staleness stays bounded even if updates are missed.
//
// # Backends
//
// RedisRankStore keeps each dimension in a sorted set shared across
// instances. MemoryRankStore is the single-process equivalent used in
// tests and standalone deployments.
package ranking

import (
	"context"
	"time"
)

// Dimension names one leaderboard.
type Dimension string

const (
	// ByHolders ranks resources by their current holder count.
	ByHolders Dimension = "by-holders"
	// ByFillRate ranks resources by current/max.
	ByFillRate Dimension = "by-fill-rate"
)

// Dimensions lists every leaderboard the cache maintains.
var Dimensions = []Dimension{ByHolders, ByFillRate}

// Entry is one ranked resource.
type Entry struct {
	ResourceID string
	Score      float64
}

// RankStore is the ordered-set backend behind a Cache. Scores sort
// ascending; TopN returns the highest scores first.
type RankStore interface {
	// Score reports the member's score, with ok=false when absent.
	Score(ctx context.Context, dim Dimension, resourceID string) (float64, bool, error)

	// Add inserts the member or overwrites its score.
	Add(ctx context.Context, dim Dimension, resourceID string, score float64) error

	// Card reports the set's size.
	Card(ctx context.Context, dim Dimension) (int64, error)

	// Min returns the lowest-scored member, with ok=false when empty.
	Min(ctx context.Context, dim Dimension) (Entry, bool, error)

	// Remove drops the member if present.
	Remove(ctx context.Context, dim Dimension, resourceID string) error

	// TopN returns up to n members, highest score first.
	TopN(ctx context.Context, dim Dimension, n int) ([]Entry, error)

	// TrimToSize removes the lowest-scored members until at most k remain.
	TrimToSize(ctx context.Context, dim Dimension, k int) error

	// Expire refreshes the set's TTL.
	Expire(ctx context.Context, dim Dimension, ttl time.Duration) error
}
