package admission

// Reason explains the outcome of a reservation attempt.
type Reason string

const (
	// ReasonSuccess means the seat was granted.
	ReasonSuccess Reason = "SUCCESS"
	// ReasonCapacityExceeded means the resource is full. This is an expected
	// business outcome, not an error.
	ReasonCapacityExceeded Reason = "CAPACITY_EXCEEDED"
	// ReasonNotFound means no capacity record could be materialized for the
	// resource within the bounded retry budget.
	ReasonNotFound Reason = "NOT_FOUND"
	// ReasonSystemError means the fast store itself failed; the reservation
	// is denied without leaving partial state behind.
	ReasonSystemError Reason = "SYSTEM_ERROR"
)

// Outcome is the synchronous result of a Reserve call. It is transient and
// never persisted.
type Outcome struct {
	Granted  bool
	Reason   Reason
	NewCount int64
}

// CapacityRecord is the cached current/max count pair for one resource.
// CurrentCount is only ever mutated by the Gate's atomic increment and
// decrement or by the reconciliation job's corrective overwrite.
type CapacityRecord struct {
	ResourceID   string
	Name         string
	CurrentCount int64
	MaxCount     int64
}
