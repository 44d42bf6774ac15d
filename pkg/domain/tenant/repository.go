package tenant

import "context"

// Repository provides read access to organisations and their service
// credentials. Backed by the relational collaborator; the core never
// writes organisations.
type Repository interface {
	// GetByID returns a single organisation.
	GetByID(ctx context.Context, id int64) (*Organisation, error)

	// ListActiveWithService returns active organisations subscribed to the
	// given service.
	ListActiveWithService(ctx context.Context, service ServiceName) ([]*Organisation, error)

	// GetEncryptedCredentials returns the stored credential blob for an
	// organisation/service pair. Returns shared.ErrConfiguration when the
	// organisation has no such service assigned.
	GetEncryptedCredentials(ctx context.Context, orgID int64, service ServiceName) (string, error)
}
