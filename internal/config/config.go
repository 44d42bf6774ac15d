// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Mongo      MongoConfig
	Log        LogConfig
	Auth       AuthConfig
	Scanner    ScannerConfig
	Jobs       JobsConfig
	Encryption EncryptionConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DatabaseConfig holds configuration for the relational collaborator
// (organisations, service credentials, job queue).
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis configuration for the gateway token cache.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MongoConfig holds defaults for tenant document databases. Hosts and
// credentials come from each tenant's encrypted service configuration;
// these settings apply to every resolved connection.
type MongoConfig struct {
	ConnectTimeout time.Duration
	SocketTimeout  time.Duration
	MaxPoolSize    uint64
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig holds inbound bearer-token configuration.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// ScannerConfig holds configuration for the external scanning service.
type ScannerConfig struct {
	// BaseURL is the default SecurityCenter endpoint, used when a tenant's
	// credential blob does not carry its own host.
	BaseURL string

	// Admin credentials are shared across tenants and cached under a
	// dedicated token key.
	AdminUsername string
	AdminPassword string

	RequestTimeout time.Duration

	// TokenTTLMargin is the fraction shaved off the server-advertised
	// session timeout so a cached token is never used at the expiry edge.
	TokenTTLMargin float64

	// BackupRepositoryPrefix/Suffix mark secondary repositories whose scans
	// and results are excluded from reconciliation.
	BackupRepositoryPrefix string
	BackupRepositorySuffix string
}

// JobConfig holds scheduling for a single background job.
type JobConfig struct {
	Enabled bool
	Cron    string
}

// JobsConfig holds configuration for the background job runner.
type JobsConfig struct {
	ScanSync      JobConfig
	ResultEnqueue JobConfig
	VulnSync      JobConfig

	// MaxAttempts is the retry ceiling for queue rows. Rows that reach it
	// stay in the table for manual inspection.
	MaxAttempts int

	// ResultLookback is the trailing window for scan-result polling.
	ResultLookback time.Duration
}

// EncryptionConfig holds the tenant credential encryption key.
type EncryptionConfig struct {
	// Key is the base64-encoded 32-byte AES-256-GCM key.
	Key string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "vulnwarden"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20),
			RateLimitRPS:    getEnvFloat("SERVER_RATE_LIMIT_RPS", 50),
			RateLimitBurst:  getEnvInt("SERVER_RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "vulnwarden"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "vulnwarden"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Mongo: MongoConfig{
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
			SocketTimeout:  getEnvDuration("MONGO_SOCKET_TIMEOUT", 2*time.Minute),
			MaxPoolSize:    uint64(getEnvInt("MONGO_MAX_POOL_SIZE", 20)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer: getEnv("AUTH_JWT_ISSUER", "vulnwarden"),
		},
		Scanner: ScannerConfig{
			BaseURL:                getEnv("SCANNER_BASE_URL", ""),
			AdminUsername:          getEnv("SCANNER_ADMIN_USERNAME", ""),
			AdminPassword:          getEnv("SCANNER_ADMIN_PASSWORD", ""),
			RequestTimeout:         getEnvDuration("SCANNER_REQUEST_TIMEOUT", 3*time.Minute),
			TokenTTLMargin:         getEnvFloat("SCANNER_TOKEN_TTL_MARGIN", 0.05),
			BackupRepositoryPrefix: getEnv("SCANNER_BACKUP_REPO_PREFIX", ""),
			BackupRepositorySuffix: getEnv("SCANNER_BACKUP_REPO_SUFFIX", "-backup"),
		},
		Jobs: JobsConfig{
			ScanSync: JobConfig{
				Enabled: getEnvBool("JOB_SCAN_SYNC_ENABLED", true),
				Cron:    getEnv("JOB_SCAN_SYNC_CRON", "*/15 * * * *"),
			},
			ResultEnqueue: JobConfig{
				Enabled: getEnvBool("JOB_RESULT_ENQUEUE_ENABLED", true),
				Cron:    getEnv("JOB_RESULT_ENQUEUE_CRON", "*/10 * * * *"),
			},
			VulnSync: JobConfig{
				Enabled: getEnvBool("JOB_VULN_SYNC_ENABLED", true),
				Cron:    getEnv("JOB_VULN_SYNC_CRON", "*/5 * * * *"),
			},
			MaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 5),
			ResultLookback: getEnvDuration("JOB_RESULT_LOOKBACK", 2*time.Hour),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" && c.App.Env == "production" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if c.Encryption.Key == "" && c.App.Env == "production" {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required in production")
	}
	if c.Scanner.TokenTTLMargin < 0 || c.Scanner.TokenTTLMargin >= 1 {
		return fmt.Errorf("SCANNER_TOKEN_TTL_MARGIN must be in [0, 1)")
	}
	if c.Jobs.MaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsProduction returns true when running in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
