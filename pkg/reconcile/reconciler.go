package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/edusync/enrollment-gate/pkg/admission"
	"github.com/edusync/enrollment-gate/pkg/durable"
)

const (
	// DefaultInterval is how often a cycle runs.
	DefaultInterval = time.Minute
	// DefaultLockTTL bounds a cycle; it must stay below the interval so a
	// crashed runner's lease lapses before the next cycle is due.
	DefaultLockTTL = 50 * time.Second
	// DefaultLockKey names the lease in the shared store.
	DefaultLockKey = "lock:capacity-reconcile"
)

// Stats summarizes one reconciliation cycle.
type Stats struct {
	Skipped   bool
	Scanned   int
	Corrected int
	Failed    int
}

// Reconciler periodically recomputes true holder counts from the durable
// store and corrects drifted capacity records.
//
// A corrective overwrite can race an in-flight reserve or release on the
// same resource; the overwrite is treated as authoritative but transient,
// and any count it briefly supersedes converges again on the next cycle.
type Reconciler struct {
	store     admission.CapacityStore
	durable   durable.Store
	lease     *Lease
	interval  time.Duration
	recordTTL time.Duration
	clk       clock.Clock
	log       zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// WithRecordTTL sets the TTL applied to records the job corrects.
func WithRecordTTL(d time.Duration) Option {
	return func(r *Reconciler) { r.recordTTL = d }
}

// WithClock injects the clock; tests use clock.NewMock.
func WithClock(clk clock.Clock) Option {
	return func(r *Reconciler) { r.clk = clk }
}

// WithLogger sets the reconciler's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// New wires a Reconciler over the capacity store it heals, the durable
// store it trusts and the lease that guards each cycle.
func New(store admission.CapacityStore, db durable.Store, lease *Lease, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     store,
		durable:   db,
		lease:     lease,
		interval:  DefaultInterval,
		recordTTL: admission.DefaultRecordTTL,
		clk:       clock.New(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce executes one lock-guarded cycle. Losing the lease race is the
// expected contention outcome: the cycle is skipped silently and no error
// is returned. Per-key failures are logged and skipped so one bad resource
// never aborts the scan.
func (r *Reconciler) RunOnce(ctx context.Context) (Stats, error) {
	owner, ok, err := r.lease.Acquire(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("acquire reconcile lease: %w", err)
	}
	if !ok {
		r.log.Debug().Msg("reconcile lease held elsewhere, skipping cycle")
		return Stats{Skipped: true}, nil
	}
	defer func() {
		released, rerr := r.lease.Release(ctx, owner)
		if rerr != nil {
			r.log.Error().Err(rerr).Msg("reconcile lease release failed")
		} else if !released {
			r.log.Warn().Msg("reconcile lease expired before release")
		}
	}()

	ids, err := r.store.ActiveResources(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("scan active resources: %w", err)
	}

	var stats Stats
	for _, id := range ids {
		rec, ok, err := r.store.Snapshot(ctx, id)
		if err != nil {
			stats.Failed++
			r.log.Warn().Err(err).Str("resource", id).Msg("snapshot failed, skipping key")
			continue
		}
		if !ok {
			// Expired between the scan and the read; the next touch rebuilds it.
			continue
		}
		truth, err := r.durable.CountActiveHolders(ctx, id)
		if err != nil {
			stats.Failed++
			r.log.Warn().Err(err).Str("resource", id).Msg("durable count failed, skipping key")
			continue
		}
		stats.Scanned++
		if truth == rec.CurrentCount {
			continue
		}
		if err := r.store.ForceCount(ctx, id, truth, r.recordTTL); err != nil {
			stats.Failed++
			r.log.Warn().Err(err).Str("resource", id).Msg("drift correction failed, skipping key")
			continue
		}
		stats.Corrected++
		r.log.Warn().
			Str("resource", id).
			Int64("cached", rec.CurrentCount).
			Int64("actual", truth).
			Msg("drift detected, cache corrected")
	}

	if stats.Corrected > 0 {
		r.log.Info().
			Int("scanned", stats.Scanned).
			Int("corrected", stats.Corrected).
			Msg("reconcile cycle corrected drift")
	}
	return stats, nil
}

// Run executes RunOnce on every tick until the context ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := r.clk.Ticker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("reconciler running")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error().Err(err).Msg("reconcile cycle failed")
			}
		}
	}
}
