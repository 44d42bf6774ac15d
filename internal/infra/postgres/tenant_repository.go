package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
)

// TenantRepository implements tenant.Repository using PostgreSQL.
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetByID retrieves an organisation by id.
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Organisation, error) {
	query := `
		SELECT id, name, slug, active
		FROM organisations
		WHERE id = $1
	`

	var org tenant.Organisation
	err := r.db.QueryRowContext(ctx, query, id).Scan(&org.ID, &org.Name, &org.Slug, &org.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query organisation: %w", err)
	}

	return &org, nil
}

// ListActiveWithService returns active organisations subscribed to the
// given service.
func (r *TenantRepository) ListActiveWithService(ctx context.Context, service tenant.ServiceName) ([]*tenant.Organisation, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.active
		FROM organisations o
		JOIN organisation_services os ON os.organisation_id = o.id
		WHERE o.active = true AND os.service = $1
		ORDER BY o.id
	`

	rows, err := r.db.QueryContext(ctx, query, string(service))
	if err != nil {
		return nil, fmt.Errorf("failed to query organisations: %w", err)
	}
	defer rows.Close()

	var orgs []*tenant.Organisation
	for rows.Next() {
		var org tenant.Organisation
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.Active); err != nil {
			return nil, fmt.Errorf("failed to scan organisation: %w", err)
		}
		orgs = append(orgs, &org)
	}

	return orgs, rows.Err()
}

// GetEncryptedCredentials returns the stored credential blob for an
// organisation/service pair.
func (r *TenantRepository) GetEncryptedCredentials(ctx context.Context, orgID int64, service tenant.ServiceName) (string, error) {
	query := `
		SELECT credentials
		FROM organisation_services
		WHERE organisation_id = $1 AND service = $2
	`

	var blob sql.NullString
	err := r.db.QueryRowContext(ctx, query, orgID, string(service)).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", shared.NewDomainError("CONFIGURATION",
				fmt.Sprintf("organisation %d has no %s service assigned", orgID, service),
				shared.ErrConfiguration)
		}
		return "", fmt.Errorf("failed to query credentials: %w", err)
	}

	if !blob.Valid || blob.String == "" {
		return "", shared.NewDomainError("CONFIGURATION",
			fmt.Sprintf("organisation %d has empty %s credentials", orgID, service),
			shared.ErrConfiguration)
	}

	return blob.String, nil
}
