// Package admission enforces an at-most-N-concurrent-holders invariant for
// capacity-limited resources shared by many stateless server instances.
//
// The primary entry point is the Gate:
//
//	out := gate.Reserve(ctx, resourceID, holderID)
//
// The returned Outcome reports whether the seat was granted, why not when it
// was not, and the resource's count after the decision.
//
// # Overview
//
// Every resource has one CapacityRecord (current count, max count) in a
// shared fast store with a short TTL. All admission decisions execute as a
// single atomic server-side operation against that record:
//
//   - Reserve checks current < max and increments in one indivisible step.
//   - Release decrements with a floor at zero.
//
// Because the check and the mutation cannot be split, two callers racing for
// the last seat are serialized by the store and exactly one of them wins,
// regardless of how many processes are running.
//
// # Bootstrapping
//
// Records expire and processes restart, so the Bootstrapper lazily
// materializes a record the first time a resource is touched: it reads the
// configured capacity and the true active-holder count from the durable
// store and writes them with a set-only-if-absent operation. An existing
// record is never overwritten; after first materialization the Gate is the
// sole count-mutating path (the reconciliation job's corrective overwrite
// aside).
//
// # Backends
//
// Two CapacityStore implementations share the same semantics:
//
//   - RedisCapacityStore: the distributed production backend. The atomic
//     operations are embedded Lua scripts, so they are safe across any
//     number of application instances.
//   - MemoryCapacityStore: an in-process, mutex-guarded stand-in for unit
//     tests and single-instance deployments.
//
// # Failure Policy
//
// Reserve fails closed. If the record is missing even after a bootstrap
// attempt, the ensure-then-acquire sequence is retried a bounded number of
// times with a short fixed delay; past that bound the caller gets
// ReasonNotFound or ReasonSystemError, never a grant on doubt.
package admission
