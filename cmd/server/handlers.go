package main

import (
	"github.com/vulnwarden/api/internal/app"
	httpinfra "github.com/vulnwarden/api/internal/infra/http"
	"github.com/vulnwarden/api/internal/infra/http/handler"
	"github.com/vulnwarden/api/internal/infra/postgres"
	"github.com/vulnwarden/api/internal/infra/redis"
	"github.com/vulnwarden/api/pkg/logger"
	"github.com/vulnwarden/api/pkg/validator"
)

func newHandlers(db *postgres.DB, redisClient *redis.Client, repos *repositories, s *services, v *validator.Validator, log *logger.Logger) httpinfra.Handlers {
	triggerable := map[string]app.Job{
		jobScanSync:      s.ScanSync,
		jobResultEnqueue: s.ResultEnqueue,
		jobVulnSync:      s.VulnSync,
	}

	checkers := map[string]handler.HealthChecker{
		"database": db,
		"redis":    redisClient,
	}

	return httpinfra.Handlers{
		Scans:           handler.NewScanHandler(s.Scans, log),
		Vulnerabilities: handler.NewVulnerabilityHandler(s.Lifecycle, v, log),
		Reports:         handler.NewReportHandler(s.Reports, log),
		Jobs:            handler.NewJobHandler(repos.Queue, s.Scheduler, triggerable, log),
		Health:          handler.NewHealthHandler(checkers, log),
	}
}
