// Package mongo implements the tenant database router and the per-tenant
// document repositories. Every component reaches tenant data through the
// router; nothing else opens a connection.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

// Router resolves the isolated document database for an organisation.
// Connections are cached for the process lifetime, keyed by connection
// string; re-resolving concurrently yields equivalent connections and the
// driver pools internally.
type Router struct {
	tenants   tenant.Repository
	encryptor crypto.Encryptor
	cfg       config.MongoConfig
	logger    *logger.Logger

	mu      sync.Mutex
	clients map[string]*mongodrv.Client
}

// NewRouter creates a new Router.
func NewRouter(tenants tenant.Repository, encryptor crypto.Encryptor, cfg config.MongoConfig, log *logger.Logger) *Router {
	return &Router{
		tenants:   tenants,
		encryptor: encryptor,
		cfg:       cfg,
		logger:    log.With("component", "tenant_router"),
		clients:   make(map[string]*mongodrv.Client),
	}
}

// Resolve returns the tenant's database handle, connecting and caching on
// first use. Fails with shared.ErrConfiguration when the organisation has
// no database assigned.
func (r *Router) Resolve(ctx context.Context, orgID int64) (*mongodrv.Database, error) {
	blob, err := r.tenants.GetEncryptedCredentials(ctx, orgID, tenant.ServiceScanner)
	if err != nil {
		return nil, err
	}

	creds, err := tenant.DecryptCredentials(r.encryptor, blob)
	if err != nil {
		return nil, err
	}

	if !creds.HasDatabase() {
		return nil, shared.NewDomainError("CONFIGURATION",
			fmt.Sprintf("organisation %d has no database assigned", orgID),
			shared.ErrConfiguration)
	}

	uri := BuildURI(creds)

	client, err := r.clientFor(ctx, uri)
	if err != nil {
		return nil, err
	}

	return client.Database(creds.DBName), nil
}

// clientFor returns the cached client for the connection string, dialing
// on first use.
func (r *Router) clientFor(ctx context.Context, uri string) (*mongodrv.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[uri]; ok {
		return client, nil
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(r.cfg.ConnectTimeout).
		SetSocketTimeout(r.cfg.SocketTimeout).
		SetMaxPoolSize(r.cfg.MaxPoolSize)

	client, err := mongodrv.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tenant database: %w", err)
	}

	r.clients[uri] = client
	r.logger.Info("tenant database connection established")
	return client, nil
}

// Close disconnects every cached client. Called once at shutdown.
func (r *Router) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for uri, client := range r.clients {
		if err := client.Disconnect(ctx); err != nil {
			r.logger.Warn("failed to disconnect tenant database", "error", err)
		}
		delete(r.clients, uri)
	}
}

// BuildURI constructs the connection string for a tenant database.
// Supports single-host and replica-set topologies.
func BuildURI(creds *tenant.Credentials) string {
	var sb strings.Builder
	sb.WriteString("mongodb://")

	if creds.DBUsername != "" {
		sb.WriteString(url.QueryEscape(creds.DBUsername))
		if creds.DBPassword != "" {
			sb.WriteString(":")
			sb.WriteString(url.QueryEscape(creds.DBPassword))
		}
		sb.WriteString("@")
	}

	sb.WriteString(strings.Join(creds.DBHosts, ","))
	sb.WriteString("/")
	sb.WriteString(creds.DBName)

	params := url.Values{}
	if creds.ReplicaSet != "" {
		params.Set("replicaSet", creds.ReplicaSet)
	}
	if creds.DBUsername != "" {
		params.Set("authSource", creds.DBName)
	}
	if encoded := params.Encode(); encoded != "" {
		sb.WriteString("?")
		sb.WriteString(encoded)
	}

	return sb.String()
}
