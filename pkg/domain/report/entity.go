// Package report models snapshot groupings of vulnerabilities produced by
// one scan result.
package report

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Type is the approval-oriented report type.
type Type string

// Report types.
const (
	TypePreliminary Type = "preliminary"
	TypeFinalised   Type = "finalised"
)

// Report links a scan run snapshot to the vulnerabilities it produced.
// Exactly one report exists per (scan_id, last_modification_date) pair.
type Report struct {
	ID                   primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	TenableScanID        string               `bson:"tenable_scan_id" json:"tenable_scan_id"`
	ScanResultID         string               `bson:"scan_result_id" json:"scan_result_id"`
	ReportType           Type                 `bson:"report_type" json:"report_type"`
	LastModificationDate int64                `bson:"last_modification_date" json:"last_modification_date"`
	UTCTime              time.Time            `bson:"utc_time" json:"utc_time"`
	VulnerabilityIDs     []primitive.ObjectID `bson:"vulnerability_ids" json:"vulnerability_ids"`
	CreatedAt            time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time            `bson:"updated_at" json:"updated_at"`
}

// New creates a preliminary report for a scan run.
func New(tenableScanID, scanResultID string, lastModification int64) *Report {
	now := time.Now().UTC()
	return &Report{
		TenableScanID:        tenableScanID,
		ScanResultID:         scanResultID,
		ReportType:           TypePreliminary,
		LastModificationDate: lastModification,
		UTCTime:              now,
		VulnerabilityIDs:     []primitive.ObjectID{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Finalise marks the report finalised.
func (r *Report) Finalise() {
	r.ReportType = TypeFinalised
	r.UpdatedAt = time.Now().UTC()
}
