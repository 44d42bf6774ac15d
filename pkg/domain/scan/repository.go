package scan

import "context"

// Repository provides access to a tenant's scan collection. Every method
// takes the organisation id; the implementation routes to the tenant's
// isolated database.
type Repository interface {
	// EnsureUniqueIndex creates the unique index on tenable_scan_id.
	// Attempted before every insert batch so duplicate-id races surface as
	// index violations rather than duplicate documents.
	EnsureUniqueIndex(ctx context.Context, orgID int64) error

	// ListByTenableIDs returns local scans whose external id is in ids.
	ListByTenableIDs(ctx context.Context, orgID int64, ids []string) ([]*Scan, error)

	// ListTenableIDs returns all local external ids, including soft-deleted.
	ListTenableIDs(ctx context.Context, orgID int64) ([]string, error)

	// GetByTenableID returns the scan with the given external id.
	GetByTenableID(ctx context.Context, orgID int64, tenableID string) (*Scan, error)

	// Insert stores new scans.
	Insert(ctx context.Context, orgID int64, scans []*Scan) error

	// Update replaces the stored document for the scan.
	Update(ctx context.Context, orgID int64, s *Scan) error

	// MarkTenableDeleted flags the given external ids as deleted upstream.
	// Documents are never removed.
	MarkTenableDeleted(ctx context.Context, orgID int64, tenableIDs []string) error

	// List returns all scans for API consumption.
	List(ctx context.Context, orgID int64, includeDeleted bool) ([]*Scan, error)
}
