package app

import (
	"context"

	"github.com/vulnwarden/api/pkg/domain/report"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

// ReportService exposes scan-run reports to the API surface.
type ReportService struct {
	reports report.Repository
	logger  *logger.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(reports report.Repository, log *logger.Logger) *ReportService {
	return &ReportService{
		reports: reports,
		logger:  log.With("service", "report"),
	}
}

// List returns all reports for the organisation.
func (s *ReportService) List(ctx context.Context, orgID int64) ([]*report.Report, error) {
	return s.reports.List(ctx, orgID)
}

// Get returns one report.
func (s *ReportService) Get(ctx context.Context, orgID int64, id string) (*report.Report, error) {
	return s.reports.Get(ctx, orgID, id)
}

// Finalise marks a preliminary report finalised. Staff only.
func (s *ReportService) Finalise(ctx context.Context, orgID int64, id string, identity tenant.Identity) (*report.Report, error) {
	if !identity.UserType.IsStaff() {
		return nil, shared.NewDomainError("FORBIDDEN",
			"only staff may finalise reports", shared.ErrForbidden)
	}

	rep, err := s.reports.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if rep.ReportType == report.TypeFinalised {
		return nil, shared.NewDomainError("CONFLICT",
			"report is already finalised", shared.ErrConflict)
	}

	rep.Finalise()
	if err := s.reports.Update(ctx, orgID, rep); err != nil {
		return nil, err
	}

	s.logger.Info("report finalised", "organisation_id", orgID, "report_id", id)
	return rep, nil
}
