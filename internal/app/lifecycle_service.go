package app

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
	"github.com/vulnwarden/api/pkg/logger"
)

// LockOutcome classifies a lock attempt.
type LockOutcome string

// Lock outcomes.
const (
	// LockOutcomeLocked means every requested vulnerability was locked.
	LockOutcomeLocked LockOutcome = "locked"
	// LockOutcomePartial means some were already locked by other users.
	LockOutcomePartial LockOutcome = "partial"
	// LockOutcomeAlreadyLocked means none could be locked.
	LockOutcomeAlreadyLocked LockOutcome = "already_locked"
)

// LockResult reports how a lock attempt went.
type LockResult struct {
	Outcome   LockOutcome `json:"outcome"`
	Requested int         `json:"requested"`
	Matched   int64       `json:"matched"`
}

// BulkFailure records one failed document in a bulk action.
type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult reports best-effort bulk action progress.
type BulkResult struct {
	Matched  int           `json:"matched"`
	Applied  int           `json:"applied"`
	Failures []BulkFailure `json:"failures,omitempty"`
}

// LifecycleService is the vulnerability lifecycle engine: locking, the
// mutually exclusive actions, the approval workflow and notes.
type LifecycleService struct {
	vulns  vulnerability.Repository
	logger *logger.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(vulns vulnerability.Repository, log *logger.Logger) *LifecycleService {
	return &LifecycleService{
		vulns:  vulns,
		logger: log.With("service", "lifecycle"),
	}
}

// Get returns one vulnerability.
func (s *LifecycleService) Get(ctx context.Context, orgID int64, id string) (*vulnerability.Vulnerability, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	return s.vulns.Get(ctx, orgID, oid)
}

// List returns vulnerabilities matching the filter.
func (s *LifecycleService) List(ctx context.Context, orgID int64, filter vulnerability.ListFilter) ([]*vulnerability.Vulnerability, error) {
	return s.vulns.List(ctx, orgID, filter)
}

// Lock attempts to lock the given vulnerabilities for the user. The
// conditional update matches only unlocked documents and documents the
// user already holds, so the matched count classifies the outcome.
func (s *LifecycleService) Lock(ctx context.Context, orgID int64, ids []string, userID string) (*LockResult, error) {
	oids, err := parseObjectIDs(ids)
	if err != nil {
		return nil, err
	}

	matched, err := s.vulns.Lock(ctx, orgID, oids, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock vulnerabilities: %w", err)
	}

	result := &LockResult{Requested: len(oids), Matched: matched}
	switch {
	case matched == 0:
		result.Outcome = LockOutcomeAlreadyLocked
	case matched < int64(len(oids)):
		result.Outcome = LockOutcomePartial
	default:
		result.Outcome = LockOutcomeLocked
	}

	s.logger.Info("lock attempt",
		"organisation_id", orgID, "user_id", userID,
		"requested", result.Requested, "matched", result.Matched,
		"outcome", result.Outcome)
	return result, nil
}

// Unlock releases the user's locks on the given vulnerabilities.
func (s *LifecycleService) Unlock(ctx context.Context, orgID int64, ids []string, userID string) (int64, error) {
	oids, err := parseObjectIDs(ids)
	if err != nil {
		return 0, err
	}
	return s.vulns.Unlock(ctx, orgID, oids, userID)
}

// PerformAction applies one lifecycle action to one vulnerability. Fails
// with a conflict when another user holds the lock.
func (s *LifecycleService) PerformAction(ctx context.Context, orgID int64, id string, action vulnerability.Action, identity tenant.Identity) (*vulnerability.Vulnerability, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return nil, err
	}

	if err := s.applyAction(ctx, orgID, v, action, identity); err != nil {
		return nil, err
	}
	return v, nil
}

// PerformBulkAction resolves the target set from the filter and applies
// the action to each match sequentially. Individual failures are recorded
// and skipped; there is no all-or-nothing transaction.
func (s *LifecycleService) PerformBulkAction(ctx context.Context, orgID int64, filter vulnerability.ActionFilter, action vulnerability.Action, identity tenant.Identity) (*BulkResult, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	matches, err := s.vulns.FindForAction(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bulk targets: %w", err)
	}

	result := &BulkResult{Matched: len(matches)}
	for _, v := range matches {
		if err := s.applyAction(ctx, orgID, v, action, identity); err != nil {
			result.Failures = append(result.Failures, BulkFailure{
				ID:    v.ID.Hex(),
				Error: err.Error(),
			})
			continue
		}
		result.Applied++
	}

	s.logger.Info("bulk action applied",
		"organisation_id", orgID, "action", action.Kind,
		"matched", result.Matched, "applied", result.Applied,
		"failed", len(result.Failures))
	return result, nil
}

func (s *LifecycleService) applyAction(ctx context.Context, orgID int64, v *vulnerability.Vulnerability, action vulnerability.Action, identity tenant.Identity) error {
	if v.IsLockedByOther(identity.UserID) {
		return shared.NewDomainError("LOCKED",
			fmt.Sprintf("vulnerability %s is locked by another user", v.ID.Hex()),
			shared.ErrConflict)
	}

	if _, err := v.SetAction(action, identity.UserID, identity.UserType); err != nil {
		return err
	}
	return s.vulns.Save(ctx, orgID, v)
}

// ApproveHistory approves a pending or proposed history entry, copying its
// values onto the live vulnerability. Staff only.
func (s *LifecycleService) ApproveHistory(ctx context.Context, orgID int64, id, entryID string, identity tenant.Identity) (*vulnerability.Vulnerability, error) {
	if !identity.UserType.IsStaff() {
		return nil, shared.NewDomainError("FORBIDDEN",
			"only staff may review history entries", shared.ErrForbidden)
	}

	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return nil, err
	}

	if err := v.ApproveHistory(entryID, identity.UserID); err != nil {
		return nil, err
	}
	if err := s.vulns.Save(ctx, orgID, v); err != nil {
		return nil, err
	}
	return v, nil
}

// RejectHistory rejects a pending or proposed history entry. Staff only;
// a reject reason is required.
func (s *LifecycleService) RejectHistory(ctx context.Context, orgID int64, id, entryID, reason string, identity tenant.Identity) (*vulnerability.Vulnerability, error) {
	if !identity.UserType.IsStaff() {
		return nil, shared.NewDomainError("FORBIDDEN",
			"only staff may review history entries", shared.ErrForbidden)
	}

	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return nil, err
	}

	if err := v.RejectHistory(entryID, identity.UserID, reason); err != nil {
		return nil, err
	}
	if err := s.vulns.Save(ctx, orgID, v); err != nil {
		return nil, err
	}
	return v, nil
}

// AddNote appends a note to a vulnerability.
func (s *LifecycleService) AddNote(ctx context.Context, orgID int64, id, text string, identity tenant.Identity) (*vulnerability.Note, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}
	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return nil, err
	}
	if v.IsLockedByOther(identity.UserID) {
		return nil, shared.NewDomainError("LOCKED",
			"vulnerability is locked by another user", shared.ErrConflict)
	}

	note, err := v.AddNote(text, identity.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.vulns.Save(ctx, orgID, v); err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNote replaces a note's text.
func (s *LifecycleService) UpdateNote(ctx context.Context, orgID int64, id, noteID, text string, identity tenant.Identity) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return err
	}
	if v.IsLockedByOther(identity.UserID) {
		return shared.NewDomainError("LOCKED",
			"vulnerability is locked by another user", shared.ErrConflict)
	}

	if err := v.UpdateNote(noteID, text, identity.UserID); err != nil {
		return err
	}
	return s.vulns.Save(ctx, orgID, v)
}

// DeleteNote removes a note.
func (s *LifecycleService) DeleteNote(ctx context.Context, orgID int64, id, noteID string, identity tenant.Identity) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return err
	}
	if v.IsLockedByOther(identity.UserID) {
		return shared.NewDomainError("LOCKED",
			"vulnerability is locked by another user", shared.ErrConflict)
	}

	if err := v.DeleteNote(noteID); err != nil {
		return err
	}
	return s.vulns.Save(ctx, orgID, v)
}

// SoftDelete flags a vulnerability deleted. Documents are never removed.
func (s *LifecycleService) SoftDelete(ctx context.Context, orgID int64, id string, identity tenant.Identity) error {
	oid, err := parseObjectID(id)
	if err != nil {
		return err
	}
	v, err := s.vulns.Get(ctx, orgID, oid)
	if err != nil {
		return err
	}
	if v.IsLockedByOther(identity.UserID) {
		return shared.NewDomainError("LOCKED",
			"vulnerability is locked by another user", shared.ErrConflict)
	}

	v.SoftDelete()
	return s.vulns.Save(ctx, orgID, v)
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, shared.NewDomainError("VALIDATION",
			fmt.Sprintf("invalid vulnerability id %q", id), shared.ErrValidation)
	}
	return oid, nil
}

func parseObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	if len(ids) == 0 {
		return nil, shared.NewDomainError("VALIDATION",
			"at least one vulnerability id is required", shared.ErrValidation)
	}
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := parseObjectID(id)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return oids, nil
}
