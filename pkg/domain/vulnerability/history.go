package vulnerability

import (
	"time"

	"github.com/google/uuid"
)

// HistoryStatus is the approval state of a history entry.
type HistoryStatus string

// History statuses. Entries are immutable once appended except for the
// status transition fields touched by approve/reject.
const (
	HistoryPending  HistoryStatus = "pending"
	HistoryProposed HistoryStatus = "proposed"
	HistoryApproved HistoryStatus = "approved"
	HistoryRejected HistoryStatus = "rejected"
)

// Reviewable reports whether the entry still awaits a decision.
func (s HistoryStatus) Reviewable() bool {
	return s == HistoryPending || s == HistoryProposed
}

// HistoryEntry is an auditable record of a proposed or applied change to a
// vulnerability's action fields.
type HistoryEntry struct {
	ID             string         `bson:"id" json:"id"`
	Action         Kind           `bson:"action" json:"action"`
	Status         HistoryStatus  `bson:"status" json:"status"`
	PreviousValues map[string]any `bson:"previous_values,omitempty" json:"previous_values,omitempty"`
	NewValues      map[string]any `bson:"new_values" json:"new_values"`
	RequestedBy    string         `bson:"requested_by" json:"requested_by"`
	RequestedAt    time.Time      `bson:"requested_at" json:"requested_at"`
	ReviewedBy     string         `bson:"reviewed_by,omitempty" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`
	RejectReason   string         `bson:"reject_reason,omitempty" json:"reject_reason,omitempty"`
}

func newHistoryEntry(action Kind, status HistoryStatus, prev, next map[string]any, requestedBy string) HistoryEntry {
	return HistoryEntry{
		ID:             uuid.NewString(),
		Action:         action,
		Status:         status,
		PreviousValues: prev,
		NewValues:      next,
		RequestedBy:    requestedBy,
		RequestedAt:    time.Now(),
	}
}
