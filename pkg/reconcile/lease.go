// Package reconcile heals drift between the fast capacity store and the
// durable source of truth. A periodic job recomputes every active
// resource's true holder count and overwrites stale cached counts; a
// time-boxed distributed lease keeps the work from running on more than one
// instance per cycle. Exclusivity is an efficiency concern, not a
// correctness one: the recomputation is idempotent, so a lease that expires
// mid-cycle merely lets two runners do the same work.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LockStore provides the compare-and-set primitives a lease is built on.
type LockStore interface {
	// Acquire sets key to owner with a TTL only if the key is absent.
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Release deletes the key only while its value still equals owner.
	Release(ctx context.Context, key, owner string) (bool, error)
}

// Lease is a time-boxed mutual-exclusion primitive identified by an owner
// token. The TTL is the self-healing bound: a holder that crashes mid-cycle
// simply lets the lease lapse.
type Lease struct {
	store LockStore
	key   string
	ttl   time.Duration
}

// NewLease wires a lease over a lock store.
func NewLease(store LockStore, key string, ttl time.Duration) *Lease {
	return &Lease{store: store, key: key, ttl: ttl}
}

// Acquire attempts to take the lease with a fresh owner token. ok=false
// means another instance holds it.
func (l *Lease) Acquire(ctx context.Context) (owner string, ok bool, err error) {
	owner = uuid.NewString()
	ok, err = l.store.Acquire(ctx, l.key, owner, l.ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return owner, true, nil
}

// Release gives the lease back. ok=false means the lease had already
// expired, or another instance took it after expiry; either way this
// instance no longer held it.
func (l *Lease) Release(ctx context.Context, owner string) (bool, error) {
	return l.store.Release(ctx, l.key, owner)
}
