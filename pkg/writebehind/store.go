package writebehind

import (
	"context"
	"time"
)

// QueueStore is the shared-store backing for the write-behind queue: a FIFO
// list of entries plus a keyed result record per queue id.
//
// Pop must be atomic so that any number of drain workers can run
// concurrently without double-processing an entry. Unpop returns an entry to
// the head after a failed durable write; it is the only path that re-inserts
// an already-popped entry.
type QueueStore interface {
	Push(ctx context.Context, entry Entry) error
	Pop(ctx context.Context) (Entry, bool, error)
	Unpop(ctx context.Context, entry Entry) error
	Len(ctx context.Context) (int64, error)

	SetResult(ctx context.Context, result Result, ttl time.Duration) error
	Result(ctx context.Context, queueID string) (Result, bool, error)
}
