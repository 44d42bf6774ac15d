// Package job models the durable vulnerability-import work queue. One row
// is one unit of work; rows live in the relational collaborator so a crash
// mid-import loses nothing.
package job

import (
	"time"
)

// TypeFetchVulnerabilities fetches the vulnerabilities of one completed
// scan result.
const TypeFetchVulnerabilities = "fetch_vulnerabilities"

// StatusRunning marks a claimed row. A pending row has no status.
const StatusRunning = "running"

// Params is the serialized work description stored with each row.
type Params struct {
	ScanID               string `json:"scan_id"`
	ScanResultID         string `json:"scan_result_id"`
	LastModificationDate int64  `json:"last_modification_date"`
	StartTime            int64  `json:"start_time,omitempty"`
	EndTime              int64  `json:"end_time,omitempty"`
}

// Entry is a single queue row.
type Entry struct {
	ID             int64
	Type           string
	Params         Params
	OrganisationID int64
	// Status is nil while pending and StatusRunning while claimed.
	Status    *string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewFetchVulnerabilities creates a pending import row for one scan result.
func NewFetchVulnerabilities(orgID int64, params Params) *Entry {
	now := time.Now()
	return &Entry{
		Type:           TypeFetchVulnerabilities,
		Params:         params,
		OrganisationID: orgID,
		Attempts:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsRunning reports whether the row is currently claimed.
func (e *Entry) IsRunning() bool {
	return e.Status != nil && *e.Status == StatusRunning
}
