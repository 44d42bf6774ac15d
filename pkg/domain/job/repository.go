package job

import "context"

// Repository is the durable queue store.
type Repository interface {
	// Insert stores a new pending row.
	Insert(ctx context.Context, e *Entry) error

	// Exists checks the idempotency key: organisation, job type, scan id,
	// scan result id and last modification date. Matching is done against
	// the serialized params, so the same scan run is never enqueued twice.
	Exists(ctx context.Context, orgID int64, jobType string, params Params) (bool, error)

	// ClaimNextPending atomically selects the oldest pending row whose
	// attempts are below the ceiling, marks it running and increments
	// attempts. Returns nil when no row is claimable. The claim is durably
	// visible before the caller performs any external work.
	ClaimNextPending(ctx context.Context, maxAttempts int) (*Entry, error)

	// Delete removes a completed (or terminally empty) row.
	Delete(ctx context.Context, id int64) error

	// Release returns a claimed row to pending, preserving attempts.
	Release(ctx context.Context, id int64) error

	// ListByOrganisation returns rows for inspection.
	ListByOrganisation(ctx context.Context, orgID int64) ([]*Entry, error)
}
