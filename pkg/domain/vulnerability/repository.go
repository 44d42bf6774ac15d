package vulnerability

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ListFilter narrows API listings.
type ListFilter struct {
	Severities     []Severity
	PluginIDs      []string
	Targets        []string
	TenableScanID  string
	IncludeDeleted bool
}

// ActionFilter resolves the target set for bulk actions. Empty slices mean
// no filter on that dimension; handlers translate the "any"/"all" sentinels
// into empty slices before reaching the repository.
type ActionFilter struct {
	Ports     []int
	Protocol  string
	PluginIDs []string
	Targets   []string
}

// Repository provides access to a tenant's vulnerability collection.
type Repository interface {
	// Get returns one vulnerability.
	Get(ctx context.Context, orgID int64, id primitive.ObjectID) (*Vulnerability, error)

	// Save replaces the stored document with the entity's current state.
	Save(ctx context.Context, orgID int64, v *Vulnerability) error

	// List returns vulnerabilities matching the filter.
	List(ctx context.Context, orgID int64, filter ListFilter) ([]*Vulnerability, error)

	// FindForAction resolves the bulk-action target set.
	FindForAction(ctx context.Context, orgID int64, filter ActionFilter) ([]*Vulnerability, error)

	// Lock conditionally sets the lock on each id: matched only when the
	// document is unlocked or already locked by the same user. Returns the
	// matched count; callers distinguish full, partial and zero matches.
	Lock(ctx context.Context, orgID int64, ids []primitive.ObjectID, userID string) (int64, error)

	// Unlock clears locks held by the user on the given ids.
	Unlock(ctx context.Context, orgID int64, ids []primitive.ObjectID, userID string) (int64, error)

	// UpsertFromRemote merges a batch of enriched scanner vulnerabilities,
	// inserting unseen findings and refreshing seen ones. Returns the ids
	// of every document in the batch for report linkage.
	UpsertFromRemote(ctx context.Context, orgID int64, vulns []*Vulnerability) ([]primitive.ObjectID, error)
}
