package admission

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/enrollment-gate/pkg/durable"
	"github.com/edusync/enrollment-gate/pkg/retry"
)

const (
	defaultReserveAttempts = 3
	defaultRetryDelay      = 50 * time.Millisecond
)

// errRecordMissing marks an acquire that found no record even though the
// bootstrapper just ran; the ensure-then-acquire sequence is retried.
var errRecordMissing = errors.New("capacity record missing after bootstrap")

// Gate is the single invariant-enforcing point for admission decisions.
// Every reservation and release passes through it.
type Gate struct {
	store    CapacityStore
	boot     *Bootstrapper
	log      zerolog.Logger
	attempts int
	delay    time.Duration
	onChange func(ctx context.Context, rec CapacityRecord)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithAttempts bounds the ensure-then-acquire retries.
func WithAttempts(n int) GateOption {
	return func(g *Gate) { g.attempts = n }
}

// WithRetryDelay sets the fixed delay between retries.
func WithRetryDelay(d time.Duration) GateOption {
	return func(g *Gate) { g.delay = d }
}

// WithLogger sets the gate's logger; the default discards everything.
func WithLogger(log zerolog.Logger) GateOption {
	return func(g *Gate) { g.log = log }
}

// WithOnChange registers a best-effort hook invoked with the updated record
// after every successful grant or release. The ranking cache subscribes
// here; hook failures never affect the admission outcome.
func WithOnChange(fn func(ctx context.Context, rec CapacityRecord)) GateOption {
	return func(g *Gate) { g.onChange = fn }
}

// NewGate wires a Gate over a capacity store and its bootstrapper.
func NewGate(store CapacityStore, boot *Bootstrapper, opts ...GateOption) *Gate {
	g := &Gate{
		store:    store,
		boot:     boot,
		log:      zerolog.Nop(),
		attempts: defaultReserveAttempts,
		delay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reserve attempts to admit holderID to resourceID. The decision is one
// atomic check-and-increment; when the record is absent even after a
// bootstrap attempt (TTL expiry race, bootstrap failure) the sequence is
// retried up to the configured bound and then fails closed: ambiguity never
// results in a grant.
func (g *Gate) Reserve(ctx context.Context, resourceID, holderID string) Outcome {
	var out Outcome
	err := retry.Do(ctx, g.attempts, g.delay, func(ctx context.Context) error {
		if err := g.boot.EnsureRecord(ctx, resourceID); err != nil {
			if errors.Is(err, durable.ErrNotFound) {
				return retry.Stop(err)
			}
			return err
		}
		res, err := g.store.TryAcquire(ctx, resourceID, holderID)
		if err != nil {
			return err
		}
		switch res.Status {
		case AcquireGranted:
			out = Outcome{Granted: true, Reason: ReasonSuccess, NewCount: res.Count}
		case AcquireFull:
			out = Outcome{Granted: false, Reason: ReasonCapacityExceeded, NewCount: res.Count}
		default:
			g.log.Warn().Str("resource", resourceID).Msg("capacity record vanished, re-bootstrapping")
			return errRecordMissing
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errRecordMissing), errors.Is(err, durable.ErrNotFound):
			out = Outcome{Granted: false, Reason: ReasonNotFound}
		default:
			g.log.Error().Err(err).Str("resource", resourceID).Msg("reserve failed closed")
			out = Outcome{Granted: false, Reason: ReasonSystemError}
		}
	}

	g.log.Info().
		Str("resource", resourceID).
		Str("holder", holderID).
		Bool("granted", out.Granted).
		Str("reason", string(out.Reason)).
		Int64("count", out.NewCount).
		Msg("reservation decided")

	if out.Granted {
		g.notify(ctx, resourceID)
	}
	return out
}

// Release atomically decrements the resource's count with a floor at zero.
// Releasing an absent or already-empty record logs and no-ops; the count
// never goes negative.
func (g *Gate) Release(ctx context.Context, resourceID, holderID string) {
	res, err := g.store.ReleaseOne(ctx, resourceID, holderID)
	if err != nil {
		g.log.Error().Err(err).Str("resource", resourceID).Msg("release failed")
		return
	}
	switch res.Status {
	case ReleaseDone:
		g.log.Info().
			Str("resource", resourceID).
			Str("holder", holderID).
			Int64("count", res.Count).
			Msg("seat released")
		g.notify(ctx, resourceID)
	case ReleaseAtFloor:
		g.log.Warn().Str("resource", resourceID).Msg("release at zero count, ignoring")
	case ReleaseMissing:
		g.log.Warn().Str("resource", resourceID).Msg("release on absent record, ignoring")
	}
}

func (g *Gate) notify(ctx context.Context, resourceID string) {
	if g.onChange == nil {
		return
	}
	rec, ok, err := g.store.Snapshot(ctx, resourceID)
	if err != nil || !ok {
		return
	}
	g.onChange(ctx, rec)
}
