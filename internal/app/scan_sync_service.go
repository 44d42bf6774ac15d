package app

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/vulnwarden/api/internal/metrics"
	"github.com/vulnwarden/api/pkg/domain/scan"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

// maxConcurrentTenants bounds the tenant fan-out of the scheduled jobs.
const maxConcurrentTenants = 4

// ScanSyncService reconciles each tenant's local scan mirror against the
// scanner's usable scan list.
type ScanSyncService struct {
	tenants tenant.Repository
	scans   scan.Repository
	gateway Gateway
	logger  *logger.Logger
}

// NewScanSyncService creates a new ScanSyncService.
func NewScanSyncService(tenants tenant.Repository, scans scan.Repository, gateway Gateway, log *logger.Logger) *ScanSyncService {
	return &ScanSyncService{
		tenants: tenants,
		scans:   scans,
		gateway: gateway,
		logger:  log.With("service", "scan_sync"),
	}
}

// Run reconciles every subscribed tenant. One tenant's failure never
// aborts the others; errors are logged and the loop continues.
func (s *ScanSyncService) Run(ctx context.Context) error {
	orgs, err := s.tenants.ListActiveWithService(ctx, tenant.ServiceScanner)
	if err != nil {
		return fmt.Errorf("failed to list organisations: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTenants)

	for _, org := range orgs {
		org := org
		g.Go(func() error {
			if err := s.syncOrganisation(ctx, org.ID); err != nil {
				s.logger.Error("scan reconciliation failed",
					"organisation_id", org.ID, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *ScanSyncService) syncOrganisation(ctx context.Context, orgID int64) error {
	remote, err := s.gateway.ListScans(ctx, orgID)
	if err != nil {
		return err
	}

	orgLabel := strconv.FormatInt(orgID, 10)

	remoteIDs := make(map[string]bool, len(remote))
	for _, r := range remote {
		remoteIDs[r.ID] = true
	}

	// One existence query for the whole fetched set.
	ids := make([]string, 0, len(remote))
	for _, r := range remote {
		ids = append(ids, r.ID)
	}
	local, err := s.scans.ListByTenableIDs(ctx, orgID, ids)
	if err != nil {
		return err
	}
	localByID := make(map[string]*scan.Scan, len(local))
	for _, l := range local {
		localByID[l.TenableScanID] = l
	}

	var toInsert []*scan.Scan
	for _, r := range remote {
		existing, ok := localByID[r.ID]
		if !ok {
			toInsert = append(toInsert, r.ToScan())
			metrics.ScansReconciledTotal.WithLabelValues(orgLabel, "new").Inc()
			continue
		}

		if r.ModifiedAt.Int64() <= existing.ScanEnd && !existing.IsTenableDeleted {
			metrics.ScansReconciledTotal.WithLabelValues(orgLabel, "unchanged").Inc()
			continue
		}

		if existing.ApplyRemote(r.ToScan()) {
			if err := s.scans.Update(ctx, orgID, existing); err != nil {
				s.logger.Error("failed to update scan",
					"organisation_id", orgID, "tenable_scan_id", r.ID, "error", err)
				continue
			}
			metrics.ScansReconciledTotal.WithLabelValues(orgLabel, "updated").Inc()
		}
	}

	// The unique index guards against duplicate-id races between
	// overlapping runs; when it cannot be ensured, inserts are skipped
	// rather than risked.
	if len(toInsert) > 0 {
		if err := s.scans.EnsureUniqueIndex(ctx, orgID); err != nil {
			s.logger.Warn("skipping scan inserts, unique index not ensured",
				"organisation_id", orgID, "error", err)
		} else if err := s.scans.Insert(ctx, orgID, toInsert); err != nil {
			s.logger.Error("failed to insert scans",
				"organisation_id", orgID, "count", len(toInsert), "error", err)
		}
	}

	// Every local id absent from the fetched set is deleted upstream.
	// A zero-scan fetch therefore flags the whole tenant.
	allLocal, err := s.scans.ListTenableIDs(ctx, orgID)
	if err != nil {
		return err
	}
	var gone []string
	for _, id := range allLocal {
		if !remoteIDs[id] {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		if err := s.scans.MarkTenableDeleted(ctx, orgID, gone); err != nil {
			return err
		}
		metrics.ScansReconciledTotal.WithLabelValues(orgLabel, "deleted").Add(float64(len(gone)))
	}

	s.logger.Info("scan reconciliation complete",
		"organisation_id", orgID,
		"remote", len(remote),
		"inserted", len(toInsert),
		"flagged_deleted", len(gone),
	)
	return nil
}
