package vulnerability

import (
	"time"

	"github.com/google/uuid"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lock records who holds a vulnerability for editing.
type Lock struct {
	UserID   string    `bson:"user_id" json:"user_id"`
	LockedAt time.Time `bson:"locked_at" json:"locked_at"`
}

// Note is a free-form annotation on a vulnerability.
type Note struct {
	ID        string    `bson:"id" json:"id"`
	Note      string    `bson:"note" json:"note"`
	CreatedBy string    `bson:"created_by" json:"created_by"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedBy string    `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
	UpdatedAt time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Ticket links a vulnerability to an external ticketing system.
type Ticket struct {
	ID     string `bson:"id,omitempty" json:"id,omitempty"`
	Status string `bson:"status,omitempty" json:"status,omitempty"`
	URL    string `bson:"url,omitempty" json:"url,omitempty"`
}

// Vulnerability is a single detected finding in a tenant's database.
// Never hard-deleted; sync merges and user actions mutate it in place.
type Vulnerability struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PluginID      string             `bson:"plugin_id" json:"plugin_id"`
	Name          string             `bson:"name" json:"name"`
	Synopsis      string             `bson:"synopsis,omitempty" json:"synopsis,omitempty"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	Solution      string             `bson:"solution,omitempty" json:"solution,omitempty"`
	Target        string             `bson:"target" json:"target"`
	Port          int                `bson:"port" json:"port"`
	Protocol      string             `bson:"protocol" json:"protocol"`
	PortProtocol  string             `bson:"port_protocol" json:"port_protocol"`
	Severity      Severity           `bson:"severity" json:"severity"`
	Count         int                `bson:"count" json:"count"`
	TenableScanID string             `bson:"tenable_scan_id" json:"tenable_scan_id"`
	SeeAlso       []string           `bson:"see_also" json:"see_also"`
	CVE           []string           `bson:"cve" json:"cve"`
	RiskScore     *float64           `bson:"risk_score,omitempty" json:"risk_score,omitempty"`
	FirstSeen     int64              `bson:"first_seen" json:"first_seen"`
	LastSeen      int64              `bson:"last_seen" json:"last_seen"`

	FalsePositiveField     *FalsePositive     `bson:"false_positive,omitempty" json:"false_positive,omitempty"`
	SecurityExceptionField *SecurityException `bson:"security_exception,omitempty" json:"security_exception,omitempty"`
	ProposedCloseDateField *ProposedCloseDate `bson:"proposed_close_date,omitempty" json:"proposed_close_date,omitempty"`

	Locked  *Lock          `bson:"locked,omitempty" json:"locked,omitempty"`
	History []HistoryEntry `bson:"history" json:"history"`
	Notes   []Note         `bson:"notes" json:"notes"`
	Ticket  *Ticket        `bson:"ticket,omitempty" json:"ticket,omitempty"`

	IsDeleted     bool       `bson:"is_deleted" json:"is_deleted"`
	SoftDeletedAt *time.Time `bson:"soft_deleted_at,omitempty" json:"soft_deleted_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
}

// IsLockedByOther reports whether the lock blocks the requesting user.
// Unlocked is never blocking; the lock holder may keep editing.
func (v *Vulnerability) IsLockedByOther(userID string) bool {
	return IsLocked(v.Locked, userID)
}

// IsLocked is the pure lock predicate over a lock value.
func IsLocked(lock *Lock, requestingUserID string) bool {
	if lock == nil {
		return false
	}
	return lock.UserID != requestingUserID
}

// ActiveAction returns the currently active action kind, or empty when the
// vulnerability carries none.
func (v *Vulnerability) ActiveAction() Kind {
	switch {
	case v.FalsePositiveField != nil:
		return KindFalsePositive
	case v.SecurityExceptionField != nil:
		return KindSecurityException
	case v.ProposedCloseDateField != nil:
		return KindProposedCloseDate
	default:
		return ""
	}
}

// currentValues snapshots the live payload of the given action field.
func (v *Vulnerability) currentValues(kind Kind) map[string]any {
	switch kind {
	case KindFalsePositive:
		if v.FalsePositiveField != nil {
			return map[string]any{"reason": v.FalsePositiveField.Reason}
		}
	case KindSecurityException:
		if v.SecurityExceptionField != nil {
			return map[string]any{
				"start_date": v.SecurityExceptionField.StartDate,
				"end_date":   v.SecurityExceptionField.EndDate,
				"reason":     v.SecurityExceptionField.Reason,
			}
		}
	case KindProposedCloseDate:
		if v.ProposedCloseDateField != nil {
			return map[string]any{
				"date":   v.ProposedCloseDateField.Date,
				"reason": v.ProposedCloseDateField.Reason,
			}
		}
	}
	return nil
}

// clearActions removes every action field except keep. Enforces the
// single-active-action invariant in one place.
func (v *Vulnerability) clearActions(keep Kind) {
	if keep != KindFalsePositive {
		v.FalsePositiveField = nil
	}
	if keep != KindSecurityException {
		v.SecurityExceptionField = nil
	}
	if keep != KindProposedCloseDate {
		v.ProposedCloseDateField = nil
	}
}

// applyAction writes the action payload onto the live field.
func (v *Vulnerability) applyAction(a Action, actorID string, at time.Time) {
	switch a.Kind {
	case KindFalsePositive:
		fp := *a.FalsePositive
		fp.SetBy = actorID
		fp.SetAt = at
		v.FalsePositiveField = &fp
	case KindSecurityException:
		se := *a.SecurityException
		se.SetBy = actorID
		se.SetAt = at
		v.SecurityExceptionField = &se
	case KindProposedCloseDate:
		pcd := *a.ProposedCloseDate
		pcd.SetBy = actorID
		pcd.SetAt = at
		v.ProposedCloseDateField = &pcd
	}
}

// historyStatusFor determines the initial history status. Customer updates
// start pending; staff updates are applied as approved. A proposed close
// date always requires explicit approval, whoever requests it.
func historyStatusFor(kind Kind, actorType tenant.UserType) HistoryStatus {
	if kind == KindProposedCloseDate {
		return HistoryProposed
	}
	if actorType.IsStaff() {
		return HistoryApproved
	}
	return HistoryPending
}

// SetAction applies a lifecycle action: validates the payload, clears any
// other active action field, writes the new field and appends a history
// entry when the tracked values actually changed. Returns the appended
// entry, or nil when nothing changed.
func (v *Vulnerability) SetAction(a Action, actorID string, actorType tenant.UserType) (*HistoryEntry, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	prev := v.currentValues(a.Kind)
	next := a.Values()

	now := time.Now()
	v.clearActions(a.Kind)
	v.applyAction(a, actorID, now)
	v.UpdatedAt = now

	if valuesEqual(prev, next) {
		return nil, nil
	}

	entry := newHistoryEntry(a.Kind, historyStatusFor(a.Kind, actorType), prev, next, actorID)
	v.History = append(v.History, entry)
	return &v.History[len(v.History)-1], nil
}

// findHistory returns the history entry with the given id.
func (v *Vulnerability) findHistory(entryID string) *HistoryEntry {
	for i := range v.History {
		if v.History[i].ID == entryID {
			return &v.History[i]
		}
	}
	return nil
}

// ApproveHistory transitions the entry to approved and copies its proposed
// values onto the live action field.
func (v *Vulnerability) ApproveHistory(entryID, reviewerID string) error {
	entry := v.findHistory(entryID)
	if entry == nil {
		return shared.NewDomainError("NOT_FOUND", "history entry not found", shared.ErrNotFound)
	}
	if !entry.Status.Reviewable() {
		return shared.NewDomainError("CONFLICT", "history entry already reviewed", shared.ErrConflict)
	}

	now := time.Now()
	entry.Status = HistoryApproved
	entry.ReviewedBy = reviewerID
	entry.ReviewedAt = &now

	action := actionFromValues(entry.Action, entry.NewValues)
	v.clearActions(entry.Action)
	v.applyAction(action, entry.RequestedBy, now)
	v.UpdatedAt = now
	return nil
}

// RejectHistory transitions the entry to rejected. A reject reason is
// required; the vulnerability's substantive fields are untouched.
func (v *Vulnerability) RejectHistory(entryID, reviewerID, reason string) error {
	if reason == "" {
		return shared.NewDomainError("VALIDATION", "reject_reason is required", shared.ErrValidation)
	}

	entry := v.findHistory(entryID)
	if entry == nil {
		return shared.NewDomainError("NOT_FOUND", "history entry not found", shared.ErrNotFound)
	}
	if !entry.Status.Reviewable() {
		return shared.NewDomainError("CONFLICT", "history entry already reviewed", shared.ErrConflict)
	}

	now := time.Now()
	entry.Status = HistoryRejected
	entry.ReviewedBy = reviewerID
	entry.ReviewedAt = &now
	entry.RejectReason = reason
	return nil
}

// AddNote appends a note.
func (v *Vulnerability) AddNote(text, userID string) (*Note, error) {
	if text == "" {
		return nil, shared.NewDomainError("VALIDATION", "note text is required", shared.ErrValidation)
	}
	note := Note{
		ID:        uuid.NewString(),
		Note:      text,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}
	v.Notes = append(v.Notes, note)
	v.UpdatedAt = note.CreatedAt
	return &v.Notes[len(v.Notes)-1], nil
}

// UpdateNote replaces a note's text.
func (v *Vulnerability) UpdateNote(noteID, text, userID string) error {
	if text == "" {
		return shared.NewDomainError("VALIDATION", "note text is required", shared.ErrValidation)
	}
	for i := range v.Notes {
		if v.Notes[i].ID == noteID {
			now := time.Now()
			v.Notes[i].Note = text
			v.Notes[i].UpdatedBy = userID
			v.Notes[i].UpdatedAt = now
			v.UpdatedAt = now
			return nil
		}
	}
	return shared.NewDomainError("NOT_FOUND", "note not found", shared.ErrNotFound)
}

// DeleteNote removes a note.
func (v *Vulnerability) DeleteNote(noteID string) error {
	for i := range v.Notes {
		if v.Notes[i].ID == noteID {
			v.Notes = append(v.Notes[:i], v.Notes[i+1:]...)
			v.UpdatedAt = time.Now()
			return nil
		}
	}
	return shared.NewDomainError("NOT_FOUND", "note not found", shared.ErrNotFound)
}

// SoftDelete flags the vulnerability deleted without removing it.
func (v *Vulnerability) SoftDelete() {
	now := time.Now()
	v.IsDeleted = true
	v.SoftDeletedAt = &now
	v.UpdatedAt = now
}

// valuesEqual compares history value maps with time coercion so a bson
// round trip does not produce spurious history entries.
func valuesEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		at, aIsTime := coerceTime(av)
		bt, bIsTime := coerceTime(bv)
		if aIsTime && bIsTime {
			if !at.Equal(bt) {
				return false
			}
			continue
		}
		if av != bv {
			return false
		}
	}
	return true
}

func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case primitive.DateTime:
		return t.Time(), true
	default:
		return time.Time{}, false
	}
}
