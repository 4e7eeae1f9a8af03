package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/enrollment-gate/pkg/durable"
)

// DefaultRecordTTL is how long a materialized capacity record lives before
// the next touch re-materializes it.
const DefaultRecordTTL = 2 * time.Minute

// Bootstrapper lazily materializes capacity records from the durable store.
// EnsureRecord is idempotent and never overwrites: once a record exists, the
// Gate is the only count-mutating path.
type Bootstrapper struct {
	store   CapacityStore
	durable durable.Store
	ttl     time.Duration
	log     zerolog.Logger
}

// NewBootstrapper wires a Bootstrapper. ttl<=0 falls back to
// DefaultRecordTTL.
func NewBootstrapper(store CapacityStore, db durable.Store, ttl time.Duration, log zerolog.Logger) *Bootstrapper {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &Bootstrapper{store: store, durable: db, ttl: ttl, log: log}
}

// EnsureRecord makes sure a capacity record exists for the resource. When
// the record is absent it computes the true count of active holders from the
// durable store and writes the full record with a set-only-if-absent
// operation, so two racing bootstraps cannot clobber a count a concurrent
// acquire already advanced.
func (b *Bootstrapper) EnsureRecord(ctx context.Context, resourceID string) error {
	_, ok, err := b.store.Snapshot(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("probe capacity record: %w", err)
	}
	if ok {
		return nil
	}

	res, err := b.durable.Resource(ctx, resourceID)
	if err != nil {
		return err
	}
	count, err := b.durable.CountActiveHolders(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("count active holders: %w", err)
	}

	created, err := b.store.InitIfAbsent(ctx, CapacityRecord{
		ResourceID:   resourceID,
		Name:         res.Name,
		CurrentCount: count,
		MaxCount:     res.MaxHolders,
	}, b.ttl)
	if err != nil {
		return fmt.Errorf("init capacity record: %w", err)
	}
	if created {
		b.log.Debug().
			Str("resource", resourceID).
			Int64("current", count).
			Int64("max", res.MaxHolders).
			Dur("ttl", b.ttl).
			Msg("capacity record materialized")
	}
	return nil
}
