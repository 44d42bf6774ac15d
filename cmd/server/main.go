package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulnwarden/api/internal/config"
	httpinfra "github.com/vulnwarden/api/internal/infra/http"
	"github.com/vulnwarden/api/internal/infra/http/middleware"
	"github.com/vulnwarden/api/internal/infra/postgres"
	"github.com/vulnwarden/api/internal/infra/redis"
	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/logger"
	"github.com/vulnwarden/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)

	encryptor, err := newEncryptor(cfg, log)
	if err != nil {
		log.Error("failed to initialize credential encryption", "error", err)
		return 1
	}

	repos, err := newRepositories(cfg, db, redisClient, encryptor, log)
	if err != nil {
		log.Error("failed to initialize repositories", "error", err)
		return 1
	}
	defer repos.close()

	services := newServices(cfg, repos, encryptor, log)

	rl := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, log)
	defer rl.Stop()

	handlers := newHandlers(db, redisClient, repos, services, validator.New(), log)
	router := httpinfra.NewRouter(cfg, handlers, rl, log)
	server := httpinfra.NewServer(cfg.Server, router, log)

	if err := registerJobs(cfg, services, log); err != nil {
		log.Error("failed to register jobs", "error", err)
		return 1
	}
	services.Scheduler.Start()
	defer services.Scheduler.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
			return 1
		}
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig.String())
	}

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// newEncryptor selects the credential cipher. Production refuses to run
// without a key; development falls back to pass-through.
func newEncryptor(cfg *config.Config, log *logger.Logger) (crypto.Encryptor, error) {
	if cfg.Encryption.Key == "" {
		log.Warn("credential encryption disabled, storing blobs in plaintext")
		return crypto.NewNoOpEncryptor(), nil
	}
	return crypto.NewCipherFromBase64(cfg.Encryption.Key)
}

func closeWithLog(c interface{ Close() error }, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
