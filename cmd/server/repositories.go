package main

import (
	"context"

	"github.com/vulnwarden/api/internal/config"
	mongoinfra "github.com/vulnwarden/api/internal/infra/mongo"
	"github.com/vulnwarden/api/internal/infra/postgres"
	"github.com/vulnwarden/api/internal/infra/redis"
	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/logger"
)

// repositories bundles every storage-layer dependency.
type repositories struct {
	Tenants   *postgres.TenantRepository
	Queue     *postgres.JobQueueRepository
	Router    *mongoinfra.Router
	Scans     *mongoinfra.ScanRepository
	Vulns     *mongoinfra.VulnerabilityRepository
	Reports   *mongoinfra.ReportRepository
	Inventory *mongoinfra.InventoryRepository
	Tokens    *redis.TokenStore
}

func newRepositories(cfg *config.Config, db *postgres.DB, redisClient *redis.Client, encryptor crypto.Encryptor, log *logger.Logger) (*repositories, error) {
	tenants := postgres.NewTenantRepository(db)

	tokens, err := redis.NewTokenStore(redisClient, log)
	if err != nil {
		return nil, err
	}

	router := mongoinfra.NewRouter(tenants, encryptor, cfg.Mongo, log)

	return &repositories{
		Tenants:   tenants,
		Queue:     postgres.NewJobQueueRepository(db),
		Router:    router,
		Scans:     mongoinfra.NewScanRepository(router),
		Vulns:     mongoinfra.NewVulnerabilityRepository(router),
		Reports:   mongoinfra.NewReportRepository(router),
		Inventory: mongoinfra.NewInventoryRepository(router),
		Tokens:    tokens,
	}, nil
}

func (r *repositories) close() {
	r.Router.Close(context.Background())
}
