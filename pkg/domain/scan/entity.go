// Package scan models scan definitions mirrored from the external scanning
// service into each tenant's document database.
package scan

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Schedule describes when and how often a scan runs on the scanner side.
type Schedule struct {
	Timezone     string    `bson:"timezone" json:"timezone"`
	StartTime    string    `bson:"start_time" json:"start_time"`
	StartTimeUTC time.Time `bson:"start_time_utc" json:"start_time_utc"`
	Frequency    string    `bson:"frequency" json:"frequency"`
	Interval     int       `bson:"interval" json:"interval"`
	WeekDay      string    `bson:"week_day" json:"week_day"`
}

// Scan is the local mirror of a scanner-side scan definition.
// TenableScanID is unique per tenant database. ScanEnd only moves forward.
type Scan struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenableScanID     string             `bson:"tenable_scan_id" json:"tenable_scan_id"`
	Name              string             `bson:"name" json:"name"`
	Type              string             `bson:"type" json:"type"`
	RepeatRule        string             `bson:"repeat_rule" json:"repeat_rule"`
	Schedule          Schedule           `bson:"schedule" json:"schedule"`
	Targets           []string           `bson:"targets" json:"targets"`
	Enabled           bool               `bson:"enabled" json:"enabled"`
	ScanStart         int64              `bson:"scan_start" json:"scan_start"`
	ScanEnd           int64              `bson:"scan_end" json:"scan_end"`
	IsTenableDeleted  bool               `bson:"is_tenable_deleted" json:"is_tenable_deleted"`
	IsFetchVMRequired bool               `bson:"is_fetch_vm_required" json:"is_fetch_vm_required"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// ApplyRemote merges a freshly fetched definition into the local mirror.
// Returns true when anything changed. ScanEnd never moves backwards.
func (s *Scan) ApplyRemote(remote *Scan) bool {
	changed := false

	if remote.Name != "" && remote.Name != s.Name {
		s.Name = remote.Name
		changed = true
	}
	if remote.Type != "" && remote.Type != s.Type {
		s.Type = remote.Type
		changed = true
	}
	if remote.RepeatRule != s.RepeatRule {
		s.RepeatRule = remote.RepeatRule
		changed = true
	}
	if remote.Schedule != s.Schedule {
		s.Schedule = remote.Schedule
		changed = true
	}
	if !equalTargets(remote.Targets, s.Targets) {
		s.Targets = remote.Targets
		changed = true
	}
	if remote.Enabled != s.Enabled {
		s.Enabled = remote.Enabled
		changed = true
	}
	if remote.ScanStart != 0 && remote.ScanStart != s.ScanStart {
		s.ScanStart = remote.ScanStart
		changed = true
	}
	if remote.ScanEnd > s.ScanEnd {
		s.ScanEnd = remote.ScanEnd
		changed = true
	}
	if s.IsTenableDeleted {
		// A scan that reappears upstream is live again.
		s.IsTenableDeleted = false
		changed = true
	}

	if changed {
		s.UpdatedAt = time.Now()
	}
	return changed
}

func equalTargets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
