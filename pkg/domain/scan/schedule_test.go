package scan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vulnwarden/api/pkg/domain/scan"
)

func TestScheduleOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("same instant overlaps", func(t *testing.T) {
		assert.True(t, scan.ScheduleOverlaps(base, base, 30))
	})

	t.Run("exactly at buffer overlaps", func(t *testing.T) {
		assert.True(t, scan.ScheduleOverlaps(base, base.Add(30*time.Minute), 30))
	})

	t.Run("one minute past buffer does not overlap", func(t *testing.T) {
		assert.False(t, scan.ScheduleOverlaps(base, base.Add(31*time.Minute), 30))
	})

	t.Run("symmetric in argument order", func(t *testing.T) {
		other := base.Add(17 * time.Minute)
		assert.Equal(t,
			scan.ScheduleOverlaps(base, other, 30),
			scan.ScheduleOverlaps(other, base, 30))
	})

	t.Run("earlier time within buffer overlaps", func(t *testing.T) {
		assert.True(t, scan.ScheduleOverlaps(base, base.Add(-29*time.Minute), 30))
	})
}

func TestTargetsOverlap(t *testing.T) {
	t.Run("shared target", func(t *testing.T) {
		assert.True(t, scan.TargetsOverlap(
			[]string{"10.0.0.1", "10.0.0.2"},
			[]string{"10.0.0.2", "10.0.0.3"}))
	})

	t.Run("disjoint targets", func(t *testing.T) {
		assert.False(t, scan.TargetsOverlap(
			[]string{"10.0.0.1"},
			[]string{"10.0.0.2"}))
	})

	t.Run("whitespace differences ignored", func(t *testing.T) {
		assert.True(t, scan.TargetsOverlap(
			[]string{" 10.0.0.1 "},
			[]string{"10.0.0.1"}))
	})

	t.Run("blank entries never match each other", func(t *testing.T) {
		assert.False(t, scan.TargetsOverlap(
			[]string{"", "  "},
			[]string{"", "10.0.0.9"}))
	})

	t.Run("empty groups", func(t *testing.T) {
		assert.False(t, scan.TargetsOverlap(nil, nil))
		assert.False(t, scan.TargetsOverlap([]string{"10.0.0.1"}, nil))
	})
}

func TestCanEdit(t *testing.T) {
	scanTime := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("locked inside the buffer window", func(t *testing.T) {
		assert.False(t, scan.CanEdit(scanTime.Add(-10*time.Minute), scanTime, 30))
		assert.False(t, scan.CanEdit(scanTime.Add(10*time.Minute), scanTime, 30))
	})

	t.Run("editable outside the buffer window", func(t *testing.T) {
		assert.True(t, scan.CanEdit(scanTime.Add(-31*time.Minute), scanTime, 30))
		assert.True(t, scan.CanEdit(scanTime.Add(31*time.Minute), scanTime, 30))
	})
}

func TestScanApplyRemote(t *testing.T) {
	local := func() *scan.Scan {
		return &scan.Scan{
			TenableScanID: "1042",
			Name:          "weekly-dmz",
			Type:          "policy",
			Targets:       []string{"10.0.0.1"},
			Enabled:       true,
			ScanStart:     1000,
			ScanEnd:       2000,
		}
	}

	t.Run("scan end never moves backwards", func(t *testing.T) {
		s := local()
		changed := s.ApplyRemote(&scan.Scan{
			Name: "weekly-dmz", Type: "policy",
			Targets: []string{"10.0.0.1"}, Enabled: true,
			ScanStart: 1000, ScanEnd: 1500,
		})
		assert.False(t, changed)
		assert.Equal(t, int64(2000), s.ScanEnd)
	})

	t.Run("newer scan end advances", func(t *testing.T) {
		s := local()
		changed := s.ApplyRemote(&scan.Scan{
			Name: "weekly-dmz", Type: "policy",
			Targets: []string{"10.0.0.1"}, Enabled: true,
			ScanStart: 1000, ScanEnd: 3000,
		})
		assert.True(t, changed)
		assert.Equal(t, int64(3000), s.ScanEnd)
	})

	t.Run("renamed scan is changed", func(t *testing.T) {
		s := local()
		changed := s.ApplyRemote(&scan.Scan{
			Name: "weekly-dmz-v2", Type: "policy",
			Targets: []string{"10.0.0.1"}, Enabled: true,
			ScanStart: 1000, ScanEnd: 2000,
		})
		assert.True(t, changed)
		assert.Equal(t, "weekly-dmz-v2", s.Name)
	})

	t.Run("reappearing scan clears the deleted flag", func(t *testing.T) {
		s := local()
		s.IsTenableDeleted = true
		changed := s.ApplyRemote(&scan.Scan{
			Name: "weekly-dmz", Type: "policy",
			Targets: []string{"10.0.0.1"}, Enabled: true,
			ScanStart: 1000, ScanEnd: 2000,
		})
		assert.True(t, changed)
		assert.False(t, s.IsTenableDeleted)
	})

	t.Run("empty remote name is not applied", func(t *testing.T) {
		s := local()
		s.ApplyRemote(&scan.Scan{
			Type:    "policy",
			Targets: []string{"10.0.0.1"}, Enabled: true,
			ScanStart: 1000, ScanEnd: 2000,
		})
		assert.Equal(t, "weekly-dmz", s.Name)
	})
}
