// Package writebehind defers durable holder-record inserts off the hot
// admission path. A grant enqueues a FIFO entry and returns immediately; a
// drain worker performs the idempotent durable write later. Delivery is
// at-least-once: a failed write leaves the entry pending for the next drain
// cycle, and the durable store's (holder, resource) uniqueness check makes
// retries harmless.
package writebehind

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edusync/enrollment-gate/pkg/durable"
)

// DefaultResultTTL bounds how long a result record stays pollable.
const DefaultResultTTL = 24 * time.Hour

// Queue is the write-behind queue facade: enqueue on grant, poll for the
// result, drain from a worker.
type Queue struct {
	store     QueueStore
	durable   durable.Store
	resultTTL time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithResultTTL overrides DefaultResultTTL.
func WithResultTTL(ttl time.Duration) QueueOption {
	return func(q *Queue) { q.resultTTL = ttl }
}

// WithLogger sets the queue's logger; the default discards everything.
func WithLogger(log zerolog.Logger) QueueOption {
	return func(q *Queue) { q.log = log }
}

// WithNow injects the clock used for entry timestamps.
func WithNow(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue wires a Queue over a queue store and the durable store the drain
// writes into.
func NewQueue(store QueueStore, db durable.Store, opts ...QueueOption) *Queue {
	q := &Queue{
		store:     store,
		durable:   db,
		resultTTL: DefaultResultTTL,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue defers the durable insert for a granted (holder, resource) pair.
// It writes a PENDING result first and then pushes the entry, so a poller
// can always observe the request. The queue id is returned even when the
// push fails; the result is then marked FAILED.
func (q *Queue) Enqueue(ctx context.Context, holderID, resourceID string) (string, error) {
	entry := Entry{
		QueueID:    uuid.NewString(),
		HolderID:   holderID,
		ResourceID: resourceID,
		EnqueuedAt: q.now(),
	}
	result := Result{
		QueueID:    entry.QueueID,
		HolderID:   holderID,
		ResourceID: resourceID,
		State:      StatePending,
		Granted:    true,
		EnqueuedAt: entry.EnqueuedAt,
	}
	if err := q.store.SetResult(ctx, result, q.resultTTL); err != nil {
		return entry.QueueID, fmt.Errorf("write pending result: %w", err)
	}
	if err := q.store.Push(ctx, entry); err != nil {
		result.State = StateFailed
		if serr := q.store.SetResult(ctx, result, q.resultTTL); serr != nil {
			q.log.Error().Err(serr).Str("queue_id", entry.QueueID).Msg("failed to record enqueue failure")
		}
		return entry.QueueID, fmt.Errorf("push entry: %w", err)
	}
	q.log.Info().
		Str("queue_id", entry.QueueID).
		Str("holder", holderID).
		Str("resource", resourceID).
		Msg("durable write queued")
	return entry.QueueID, nil
}

// PollResult returns the result record for a queue id, with ok=false when it
// never existed or its TTL lapsed.
func (q *Queue) PollResult(ctx context.Context, queueID string) (Result, bool, error) {
	return q.store.Result(ctx, queueID)
}

// DrainOnce pops entries one at a time until the queue is empty, performing
// the durable insert for each. A duplicate pair is skipped without error
// (the write already happened). A durable failure returns the entry to the
// queue head and ends the cycle; the entry stays PENDING and is retried by
// the next drain. Multiple concurrent drainers are safe: the pop is atomic.
func (q *Queue) DrainOnce(ctx context.Context) (int, error) {
	processed := 0
	for {
		entry, ok, err := q.store.Pop(ctx)
		if err != nil {
			return processed, fmt.Errorf("pop entry: %w", err)
		}
		if !ok {
			return processed, nil
		}

		inserted, err := q.durable.InsertIfAbsent(ctx, entry.HolderID, entry.ResourceID)
		if err != nil {
			if uerr := q.store.Unpop(ctx, entry); uerr != nil {
				q.log.Error().Err(uerr).Str("queue_id", entry.QueueID).Msg("failed to return entry to queue")
			}
			return processed, fmt.Errorf("durable insert for %s: %w", entry.QueueID, err)
		}
		if !inserted {
			q.log.Warn().
				Str("queue_id", entry.QueueID).
				Str("holder", entry.HolderID).
				Str("resource", entry.ResourceID).
				Msg("duplicate durable record, skipping")
		}

		result := Result{
			QueueID:     entry.QueueID,
			HolderID:    entry.HolderID,
			ResourceID:  entry.ResourceID,
			State:       StateCompleted,
			Granted:     true,
			Duplicate:   !inserted,
			EnqueuedAt:  entry.EnqueuedAt,
			CompletedAt: q.now(),
		}
		if err := q.store.SetResult(ctx, result, q.resultTTL); err != nil {
			// The durable write is already done; a lost result record only
			// degrades polling, so log and keep draining.
			q.log.Error().Err(err).Str("queue_id", entry.QueueID).Msg("failed to mark result completed")
		}
		processed++
	}
}

// Len reports how many entries are waiting for a drain.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.store.Len(ctx)
}
