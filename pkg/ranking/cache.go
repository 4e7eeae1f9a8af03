package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/enrollment-gate/pkg/durable"
)

const (
	// DefaultSize bounds each dimension's set.
	DefaultSize = 40
	// DefaultPageSize caps how many entries a single read serves.
	DefaultPageSize = 20
	// DefaultTTL forces a periodic full rebuild from the durable store.
	DefaultTTL = 2 * time.Minute
)

// Cache serves the first page of each leaderboard out of a bounded
// ordered set, backfilling from the durable store when the set runs
// short.
type Cache struct {
	store    RankStore
	db       durable.Store
	size     int
	pageSize int
	ttl      time.Duration
	log      zerolog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithSize overrides DefaultSize.
func WithSize(k int) CacheOption {
	return func(c *Cache) { c.size = k }
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) CacheOption {
	return func(c *Cache) { c.pageSize = n }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger sets the cache's logger.
func WithLogger(log zerolog.Logger) CacheOption {
	return func(c *Cache) { c.log = log }
}

// NewCache wires a Cache over its ordered-set backend and the durable
// store used for backfill.
func NewCache(store RankStore, db durable.Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:    store,
		db:       db,
		size:     DefaultSize,
		pageSize: DefaultPageSize,
		ttl:      DefaultTTL,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// score maps a resource's counts onto a dimension's axis.
func score(dim Dimension, current, max int64) float64 {
	switch dim {
	case ByFillRate:
		if max <= 0 {
			return 0
		}
		return float64(current) / float64(max)
	default:
		return float64(current)
	}
}

// Update refreshes every dimension after an admission decision changed
// a resource's count. It is best-effort: a stale leaderboard is
// acceptable, so failures are logged and never surfaced to the
// admission path.
func (c *Cache) Update(ctx context.Context, resourceID string, current, max int64) {
	for _, dim := range Dimensions {
		if err := c.updateDim(ctx, dim, resourceID, score(dim, current, max)); err != nil {
			c.log.Warn().Err(err).
				Str("resource", resourceID).
				Str("dimension", string(dim)).
				Msg("ranking update failed")
		}
	}
}

func (c *Cache) updateDim(ctx context.Context, dim Dimension, resourceID string, newScore float64) error {
	_, present, err := c.store.Score(ctx, dim, resourceID)
	if err != nil {
		return err
	}
	switch {
	case present:
		if err := c.store.Add(ctx, dim, resourceID, newScore); err != nil {
			return err
		}
	default:
		card, err := c.store.Card(ctx, dim)
		if err != nil {
			return err
		}
		if card < int64(c.size) {
			if err := c.store.Add(ctx, dim, resourceID, newScore); err != nil {
				return err
			}
			break
		}
		min, ok, err := c.store.Min(ctx, dim)
		if err != nil {
			return err
		}
		if !ok || newScore <= min.Score {
			// Full set and the newcomer does not beat the floor.
			return nil
		}
		if err := c.store.Remove(ctx, dim, min.ResourceID); err != nil {
			return err
		}
		if err := c.store.Add(ctx, dim, resourceID, newScore); err != nil {
			return err
		}
	}
	return c.store.Expire(ctx, dim, c.ttl)
}

// Top serves up to size entries for the dimension, highest score first.
// size is capped at the cache's page size; pages beyond the first are
// always the durable store's job. A short page triggers a backfill from
// the durable store before re-serving.
func (c *Cache) Top(ctx context.Context, dim Dimension, size int) ([]Entry, error) {
	if size <= 0 || size > c.pageSize {
		size = c.pageSize
	}
	entries, err := c.store.TopN(ctx, dim, size)
	if err != nil {
		return nil, fmt.Errorf("read ranking %s: %w", dim, err)
	}
	if len(entries) >= size {
		return entries, nil
	}
	if err := c.backfill(ctx, dim); err != nil {
		return nil, fmt.Errorf("backfill ranking %s: %w", dim, err)
	}
	entries, err = c.store.TopN(ctx, dim, size)
	if err != nil {
		return nil, fmt.Errorf("read ranking %s: %w", dim, err)
	}
	return entries, nil
}

// backfill pulls candidates the set does not already hold from the
// durable store and inserts them with the dimension's score.
func (c *Cache) backfill(ctx context.Context, dim Dimension) error {
	cached, err := c.store.TopN(ctx, dim, c.size)
	if err != nil {
		return err
	}
	exclude := make(map[string]bool, len(cached))
	for _, e := range cached {
		exclude[e.ResourceID] = true
	}
	missing := c.size - len(cached)
	if missing <= 0 {
		return nil
	}

	candidates, err := c.db.TopByActiveHolders(ctx, missing, exclude)
	if err != nil {
		return err
	}
	for _, cand := range candidates {
		s := float64(cand.Holders)
		if dim == ByFillRate {
			res, err := c.db.Resource(ctx, cand.ResourceID)
			if err != nil {
				return err
			}
			s = score(dim, cand.Holders, res.MaxHolders)
		}
		if err := c.store.Add(ctx, dim, cand.ResourceID, s); err != nil {
			return err
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if err := c.store.TrimToSize(ctx, dim, c.size); err != nil {
		return err
	}
	return c.store.Expire(ctx, dim, c.ttl)
}
