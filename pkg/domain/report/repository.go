package report

import "context"

// Repository provides access to a tenant's report collection.
type Repository interface {
	// FindByScanAndModification returns the report for the idempotency key,
	// or shared.ErrNotFound.
	FindByScanAndModification(ctx context.Context, orgID int64, tenableScanID string, lastModification int64) (*Report, error)

	// Create stores a new report.
	Create(ctx context.Context, orgID int64, r *Report) error

	// Update replaces the stored document.
	Update(ctx context.Context, orgID int64, r *Report) error

	// Get returns one report by id string.
	Get(ctx context.Context, orgID int64, id string) (*Report, error)

	// List returns all reports for the organisation.
	List(ctx context.Context, orgID int64) ([]*Report, error)

	// ListModificationDates returns every stored last_modification_date.
	// Used by the enqueue job to skip scan results already reported.
	ListModificationDates(ctx context.Context, orgID int64) (map[int64]bool, error)
}
