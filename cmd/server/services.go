package main

import (
	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/internal/infra/tenable"
	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/logger"
)

// Job names used for scheduling, metrics and the admin trigger endpoint.
const (
	jobScanSync      = "scan_sync"
	jobResultEnqueue = "result_enqueue"
	jobVulnSync      = "vuln_sync"
)

// services bundles the application layer.
type services struct {
	Gateway       *tenable.Client
	ScanSync      *app.ScanSyncService
	ResultEnqueue *app.ResultEnqueueService
	VulnSync      *app.VulnSyncService
	Lifecycle     *app.LifecycleService
	Scans         *app.ScanService
	Reports       *app.ReportService
	Scheduler     *app.Scheduler
}

func newServices(cfg *config.Config, repos *repositories, encryptor crypto.Encryptor, log *logger.Logger) *services {
	gateway := tenable.NewClient(cfg.Scanner, repos.Tenants, encryptor, repos.Tokens, log)

	return &services{
		Gateway: gateway,
		ScanSync: app.NewScanSyncService(
			repos.Tenants, repos.Scans, gateway, log),
		ResultEnqueue: app.NewResultEnqueueService(
			repos.Tenants, repos.Scans, repos.Reports, repos.Queue, gateway,
			cfg.Jobs.ResultLookback, log),
		VulnSync: app.NewVulnSyncService(
			repos.Queue, repos.Vulns, repos.Reports, repos.Inventory, gateway,
			cfg.Jobs.MaxAttempts, log),
		Lifecycle: app.NewLifecycleService(repos.Vulns, log),
		Scans:     app.NewScanService(repos.Scans, log),
		Reports:   app.NewReportService(repos.Reports, log),
		Scheduler: app.NewScheduler(cfg.Jobs, log),
	}
}

// registerJobs places the pipeline jobs on their cron schedules.
func registerJobs(cfg *config.Config, s *services, log *logger.Logger) error {
	if err := s.Scheduler.Register(jobScanSync, cfg.Jobs.ScanSync, s.ScanSync); err != nil {
		return err
	}
	if err := s.Scheduler.Register(jobResultEnqueue, cfg.Jobs.ResultEnqueue, s.ResultEnqueue); err != nil {
		return err
	}
	return s.Scheduler.Register(jobVulnSync, cfg.Jobs.VulnSync, s.VulnSync)
}
