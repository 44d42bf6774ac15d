package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vulnwarden/api/pkg/domain/job"
	"github.com/vulnwarden/api/pkg/domain/report"
	"github.com/vulnwarden/api/pkg/domain/scan"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

// ResultEnqueueService turns completed scan results into pending import
// rows, exactly one row per scan run.
type ResultEnqueueService struct {
	tenants  tenant.Repository
	scans    scan.Repository
	reports  report.Repository
	queue    job.Repository
	gateway  Gateway
	lookback time.Duration
	logger   *logger.Logger
}

// NewResultEnqueueService creates a new ResultEnqueueService.
func NewResultEnqueueService(tenants tenant.Repository, scans scan.Repository, reports report.Repository, queue job.Repository, gateway Gateway, lookback time.Duration, log *logger.Logger) *ResultEnqueueService {
	return &ResultEnqueueService{
		tenants:  tenants,
		scans:    scans,
		reports:  reports,
		queue:    queue,
		gateway:  gateway,
		lookback: lookback,
		logger:   log.With("service", "result_enqueue"),
	}
}

// Run enqueues import rows for every subscribed tenant.
func (s *ResultEnqueueService) Run(ctx context.Context) error {
	orgs, err := s.tenants.ListActiveWithService(ctx, tenant.ServiceScanner)
	if err != nil {
		return fmt.Errorf("failed to list organisations: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTenants)

	for _, org := range orgs {
		org := org
		g.Go(func() error {
			if err := s.enqueueOrganisation(ctx, org.ID); err != nil {
				s.logger.Error("result enqueue failed",
					"organisation_id", org.ID, "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *ResultEnqueueService) enqueueOrganisation(ctx context.Context, orgID int64) error {
	since := time.Now().Add(-s.lookback)
	results, err := s.gateway.ListScanResults(ctx, orgID, since)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	// Results whose finish time already backs a stored report were
	// processed in a previous window; never re-enqueue them.
	reported, err := s.reports.ListModificationDates(ctx, orgID)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, result := range results {
		if !result.Completed() {
			continue
		}
		if reported[result.FinishTime.Int64()] {
			continue
		}

		// Only runs of a locally known scan are importable.
		if _, err := s.scans.GetByTenableID(ctx, orgID, result.Scan.ID); err != nil {
			if shared.IsNotFound(err) {
				s.logger.Debug("skipping result of unknown scan",
					"organisation_id", orgID, "tenable_scan_id", result.Scan.ID)
				continue
			}
			return err
		}

		params := job.Params{
			ScanID:               result.Scan.ID,
			ScanResultID:         result.ID,
			LastModificationDate: result.FinishTime.Int64(),
			StartTime:            result.StartTime.Int64(),
			EndTime:              result.FinishTime.Int64(),
		}

		exists, err := s.queue.Exists(ctx, orgID, job.TypeFetchVulnerabilities, params)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if err := s.queue.Insert(ctx, job.NewFetchVulnerabilities(orgID, params)); err != nil {
			return err
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("import rows enqueued",
			"organisation_id", orgID, "count", enqueued)
	}
	return nil
}
