package admission

import (
	"context"
	"time"
)

// AcquireStatus classifies the result of an atomic acquire.
type AcquireStatus int

const (
	// AcquireMissing means no capacity record exists for the resource.
	AcquireMissing AcquireStatus = iota
	// AcquireFull means the resource is at capacity; Count holds the
	// unchanged current count.
	AcquireFull
	// AcquireGranted means the count was incremented; Count holds the new
	// value.
	AcquireGranted
)

// AcquireResult is the outcome of a TryAcquire call.
type AcquireResult struct {
	Status AcquireStatus
	Count  int64
}

// ReleaseStatus classifies the result of an atomic release.
type ReleaseStatus int

const (
	// ReleaseMissing means no capacity record exists for the resource.
	ReleaseMissing ReleaseStatus = iota
	// ReleaseAtFloor means the count was already zero and was left alone.
	ReleaseAtFloor
	// ReleaseDone means the count was decremented; Count holds the new
	// value.
	ReleaseDone
)

// ReleaseResult is the outcome of a ReleaseOne call.
type ReleaseResult struct {
	Status ReleaseStatus
	Count  int64
}

// CapacityStore provides the atomic single-key operations every admission
// decision is built on. TryAcquire and ReleaseOne must be indivisible
// server-side operations: no implementation may split the check and the
// mutation across two calls.
type CapacityStore interface {
	// TryAcquire atomically checks current < max and increments. holderID is
	// recorded alongside the count for observability and may be empty.
	TryAcquire(ctx context.Context, resourceID, holderID string) (AcquireResult, error)

	// ReleaseOne atomically decrements the count with a floor at zero.
	ReleaseOne(ctx context.Context, resourceID, holderID string) (ReleaseResult, error)

	// InitIfAbsent writes the full record with a TTL, only if no count field
	// exists yet. It reports whether this call created the record.
	InitIfAbsent(ctx context.Context, rec CapacityRecord, ttl time.Duration) (bool, error)

	// Snapshot returns the current record, with ok=false when absent.
	Snapshot(ctx context.Context, resourceID string) (CapacityRecord, bool, error)

	// ActiveResources lists the ids of all resources that currently have a
	// capacity record. Used by the reconciliation scan.
	ActiveResources(ctx context.Context) ([]string, error)

	// ForceCount overwrites the current count and refreshes the TTL. Only
	// the reconciliation job may call this.
	ForceCount(ctx context.Context, resourceID string, count int64, ttl time.Duration) error
}
