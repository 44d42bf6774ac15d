package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vulnwarden/api/pkg/domain/job"
)

// JobQueueRepository implements job.Repository using PostgreSQL.
type JobQueueRepository struct {
	db *DB
}

// NewJobQueueRepository creates a new JobQueueRepository.
func NewJobQueueRepository(db *DB) *JobQueueRepository {
	return &JobQueueRepository{db: db}
}

// Insert stores a new pending row.
func (r *JobQueueRepository) Insert(ctx context.Context, e *job.Entry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal job params: %w", err)
	}

	query := `
		INSERT INTO vm_import_jobs (job_type, params, organisation_id, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, $4, $5, $6)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		e.Type, params, e.OrganisationID, e.Attempts, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Exists checks the idempotency key by pattern matching on the serialized
// params blob, scoped by organisation and job type.
func (r *JobQueueRepository) Exists(ctx context.Context, orgID int64, jobType string, params job.Params) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM vm_import_jobs
			WHERE organisation_id = $1
			AND job_type = $2
			AND params::text LIKE $3
			AND params::text LIKE $4
			AND params::text LIKE $5
		)
	`

	scanPattern := fmt.Sprintf(`%%"scan_id":"%s"%%`, params.ScanID)
	resultPattern := fmt.Sprintf(`%%"scan_result_id":"%s"%%`, params.ScanResultID)
	modPattern := fmt.Sprintf(`%%"last_modification_date":%d%%`, params.LastModificationDate)

	var exists bool
	err := r.db.QueryRowContext(ctx, query, orgID, jobType, scanPattern, resultPattern, modPattern).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}

	return exists, nil
}

// ClaimNextPending atomically claims the oldest pending row below the
// attempts ceiling. The conditional update and the row fetch are a single
// statement, so the claim is durably visible before any external work
// starts and two overlapping runs can never claim the same row.
func (r *JobQueueRepository) ClaimNextPending(ctx context.Context, maxAttempts int) (*job.Entry, error) {
	query := `
		UPDATE vm_import_jobs
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM vm_import_jobs
			WHERE status IS NULL AND attempts < $2
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_type, params, organisation_id, status, attempts, created_at, updated_at
	`

	row := r.db.QueryRowContext(ctx, query, job.StatusRunning, maxAttempts)
	entry, err := scanJobEntry(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return entry, nil
}

// Delete removes a completed row.
func (r *JobQueueRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM vm_import_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// Release returns a claimed row to pending, preserving attempts.
func (r *JobQueueRepository) Release(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE vm_import_jobs SET status = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

// ListByOrganisation returns rows for inspection, oldest first.
func (r *JobQueueRepository) ListByOrganisation(ctx context.Context, orgID int64) ([]*job.Entry, error) {
	query := `
		SELECT id, job_type, params, organisation_id, status, attempts, created_at, updated_at
		FROM vm_import_jobs
		WHERE organisation_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var entries []*job.Entry
	for rows.Next() {
		entry, err := scanJobEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanJobEntry(scan func(dest ...any) error) (*job.Entry, error) {
	var (
		entry  job.Entry
		params []byte
		status sql.NullString
	)

	err := scan(
		&entry.ID, &entry.Type, &params, &entry.OrganisationID,
		&status, &entry.Attempts, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if status.Valid {
		entry.Status = &status.String
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &entry.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job params: %w", err)
		}
	}

	return &entry, nil
}
