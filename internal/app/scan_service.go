package app

import (
	"context"
	"time"

	"github.com/vulnwarden/api/pkg/domain/scan"
	"github.com/vulnwarden/api/pkg/logger"
)

// editBufferMinutes is the window around a scheduled start during which a
// scan may not be edited.
const editBufferMinutes = 30

// ScanService exposes the local scan mirror to the API surface.
type ScanService struct {
	scans  scan.Repository
	logger *logger.Logger
}

// NewScanService creates a new ScanService.
func NewScanService(scans scan.Repository, log *logger.Logger) *ScanService {
	return &ScanService{
		scans:  scans,
		logger: log.With("service", "scan"),
	}
}

// List returns the tenant's scans.
func (s *ScanService) List(ctx context.Context, orgID int64, includeDeleted bool) ([]*scan.Scan, error) {
	return s.scans.List(ctx, orgID, includeDeleted)
}

// Get returns one scan by external id.
func (s *ScanService) Get(ctx context.Context, orgID int64, tenableID string) (*scan.Scan, error) {
	return s.scans.GetByTenableID(ctx, orgID, tenableID)
}

// CanEdit reports whether the scan may be edited right now. Editing is
// blocked inside the buffer around the scheduled start.
func (s *ScanService) CanEdit(ctx context.Context, orgID int64, tenableID string) (bool, error) {
	sc, err := s.scans.GetByTenableID(ctx, orgID, tenableID)
	if err != nil {
		return false, err
	}
	if sc.Schedule.StartTimeUTC.IsZero() {
		return true, nil
	}
	return scan.CanEdit(time.Now().UTC(), sc.Schedule.StartTimeUTC, editBufferMinutes), nil
}
