package writebehind

import "time"

// State tracks a queued durable write through its lifecycle.
type State string

const (
	// StatePending means the durable insert has not completed yet.
	StatePending State = "PENDING"
	// StateCompleted means the durable insert finished (or was found to be a
	// duplicate, which counts as done).
	StateCompleted State = "COMPLETED"
	// StateFailed means the request never made it onto the queue.
	StateFailed State = "FAILED"
)

// Entry is one deferred durable write. Entries are created on grant, popped
// exactly once by a drain worker, and never reused.
type Entry struct {
	QueueID    string    `json:"queueId"`
	HolderID   string    `json:"holderId"`
	ResourceID string    `json:"resourceId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Result is the pollable record for one queue entry. It outlives the entry
// itself under a bounded TTL so callers can ask what happened to their
// request after the fact.
type Result struct {
	QueueID     string    `json:"queueId"`
	HolderID    string    `json:"holderId"`
	ResourceID  string    `json:"resourceId"`
	State       State     `json:"state"`
	Granted     bool      `json:"granted"`
	Duplicate   bool      `json:"duplicate,omitempty"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}
