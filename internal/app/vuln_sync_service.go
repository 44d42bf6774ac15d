package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vulnwarden/api/internal/infra/tenable"
	"github.com/vulnwarden/api/internal/metrics"
	"github.com/vulnwarden/api/pkg/domain/inventory"
	"github.com/vulnwarden/api/pkg/domain/job"
	"github.com/vulnwarden/api/pkg/domain/report"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
	"github.com/vulnwarden/api/pkg/logger"
)

// VulnSyncService drains the import queue, one row per invocation. The
// claim is durably visible before the external fetch starts, which is the
// sole mechanism keeping overlapping runs off the same row.
type VulnSyncService struct {
	queue       job.Repository
	vulns       vulnerability.Repository
	reports     report.Repository
	inventory   inventory.Repository
	gateway     Gateway
	maxAttempts int
	logger      *logger.Logger
}

// NewVulnSyncService creates a new VulnSyncService.
func NewVulnSyncService(queue job.Repository, vulns vulnerability.Repository, reports report.Repository, inv inventory.Repository, gateway Gateway, maxAttempts int, log *logger.Logger) *VulnSyncService {
	return &VulnSyncService{
		queue:       queue,
		vulns:       vulns,
		reports:     reports,
		inventory:   inv,
		gateway:     gateway,
		maxAttempts: maxAttempts,
		logger:      log.With("service", "vuln_sync"),
	}
}

// Run claims and processes at most one queue row.
func (s *VulnSyncService) Run(ctx context.Context) error {
	entry, err := s.queue.ClaimNextPending(ctx, s.maxAttempts)
	if err != nil {
		metrics.QueueClaimsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to claim queue row: %w", err)
	}
	if entry == nil {
		metrics.QueueClaimsTotal.WithLabelValues("empty").Inc()
		return nil
	}
	metrics.QueueClaimsTotal.WithLabelValues("claimed").Inc()

	log := s.logger.With(
		"job_id", entry.ID,
		"organisation_id", entry.OrganisationID,
		"scan_result_id", entry.Params.ScanResultID,
		"attempt", entry.Attempts,
	)

	if err := s.process(ctx, entry, log); err != nil {
		// Attempts stay incremented; a row at the ceiling is never
		// claimed again and remains for manual inspection.
		log.Error("import failed, releasing row", "error", err)
		if relErr := s.queue.Release(ctx, entry.ID); relErr != nil {
			log.Error("failed to release row", "error", relErr)
		}
		return err
	}

	if err := s.queue.Delete(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to delete completed row: %w", err)
	}
	return nil
}

func (s *VulnSyncService) process(ctx context.Context, entry *job.Entry, log *logger.Logger) error {
	raw, err := s.gateway.FetchVulnerabilities(ctx, entry.OrganisationID, entry.Params.ScanResultID)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		log.Info("scan result has no vulnerabilities")
		return nil
	}

	vulns := s.enrich(ctx, entry, raw, log)

	ids, err := s.vulns.UpsertFromRemote(ctx, entry.OrganisationID, vulns)
	if err != nil {
		return err
	}

	if err := s.syncReport(ctx, entry, ids); err != nil {
		return err
	}

	metrics.VulnerabilitiesSyncedTotal.
		WithLabelValues(strconv.FormatInt(entry.OrganisationID, 10)).
		Add(float64(len(ids)))
	log.Info("vulnerabilities imported", "count", len(ids))
	return nil
}

// enrich normalizes raw analysis rows into findings: integer severity,
// derived port_protocol, array-wrapped multi-value fields, scan linkage
// and inventory risk scores.
func (s *VulnSyncService) enrich(ctx context.Context, entry *job.Entry, raw []tenable.RawVulnerability, log *logger.Logger) []*vulnerability.Vulnerability {
	ips := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		if r.IP != "" && !seen[r.IP] {
			seen[r.IP] = true
			ips = append(ips, r.IP)
		}
	}

	scores, err := s.inventory.RiskScoresByIP(ctx, entry.OrganisationID, ips)
	if err != nil {
		// Risk scores are an enrichment, not a requirement.
		log.Warn("inventory lookup failed, importing without risk scores", "error", err)
		scores = map[string]float64{}
	}

	now := time.Now()
	vulns := make([]*vulnerability.Vulnerability, 0, len(raw))
	for _, r := range raw {
		port := int(r.Port.Int64())
		severity := r.Severity.ID
		if severity == "" {
			severity = r.Severity.Name
		}

		v := &vulnerability.Vulnerability{
			PluginID:      r.PluginID,
			Name:          r.PluginName,
			Synopsis:      r.Synopsis,
			Description:   r.Description,
			Solution:      r.Solution,
			Target:        r.IP,
			Port:          port,
			Protocol:      r.Protocol,
			PortProtocol:  vulnerability.PortProtocol(port, r.Protocol),
			Severity:      vulnerability.ParseSeverity(severity),
			Count:         int(r.Count.Int64()),
			TenableScanID: entry.Params.ScanID,
			SeeAlso:       vulnerability.SplitField(r.SeeAlso, "\n"),
			CVE:           vulnerability.SplitField(r.CVE, ","),
			FirstSeen:     r.FirstSeen.Int64(),
			LastSeen:      r.LastSeen.Int64(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if score, ok := scores[r.IP]; ok {
			v.RiskScore = &score
		}
		vulns = append(vulns, v)
	}
	return vulns
}

// syncReport threads the merged vulnerability ids into the report for this
// scan run, creating it on first import. Exactly one report exists per
// (scan_id, last_modification_date) pair.
func (s *VulnSyncService) syncReport(ctx context.Context, entry *job.Entry, ids []primitive.ObjectID) error {
	rep, err := s.reports.FindByScanAndModification(ctx, entry.OrganisationID,
		entry.Params.ScanID, entry.Params.LastModificationDate)
	if err != nil {
		if !shared.IsNotFound(err) {
			return err
		}
		rep = report.New(entry.Params.ScanID, entry.Params.ScanResultID, entry.Params.LastModificationDate)
		rep.VulnerabilityIDs = ids
		return s.reports.Create(ctx, entry.OrganisationID, rep)
	}

	known := make(map[string]bool, len(rep.VulnerabilityIDs))
	for _, id := range rep.VulnerabilityIDs {
		known[id.Hex()] = true
	}
	changed := false
	for _, id := range ids {
		if !known[id.Hex()] {
			rep.VulnerabilityIDs = append(rep.VulnerabilityIDs, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	rep.UpdatedAt = time.Now().UTC()
	return s.reports.Update(ctx, entry.OrganisationID, rep)
}
