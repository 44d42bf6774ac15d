package tenable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/internal/metrics"
	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

// ErrNoData is returned when the scanner answers with its vendor-specific
// empty-result code. Callers treat it as terminal success, not a failure.
var ErrNoData = errors.New("tenable: no data for query")

const (
	tokenHeader   = "X-SecurityCenter"
	sessionCookie = "TNS_SESSIONID"

	// adminTokenKey is the shared cache key for administrative-credential
	// sessions; tenant sessions are keyed per organisation.
	adminTokenKey = "admin"
)

// TokenCache stores authenticated sessions keyed per credential set.
type TokenCache interface {
	// Get returns the cached value; any error is treated as a miss.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Client is the SecurityCenter gateway. One instance serves all tenants;
// sessions are cached per tenant plus one administrative session.
type Client struct {
	httpClient *http.Client
	cfg        config.ScannerConfig
	tenants    tenant.Repository
	encryptor  crypto.Encryptor
	tokens     TokenCache
	logger     *logger.Logger
}

// NewClient creates a new Client.
func NewClient(cfg config.ScannerConfig, tenants tenant.Repository, encryptor crypto.Encryptor, tokens TokenCache, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		tenants:    tenants,
		encryptor:  encryptor,
		tokens:     tokens,
		logger:     log.With("component", "tenable_client"),
	}
}

// credentials is the resolved credential set for one request.
type credentials struct {
	cacheKey string
	baseURL  string
	username string
	password string
}

func (c *Client) tenantCredentials(ctx context.Context, orgID int64) (*credentials, error) {
	blob, err := c.tenants.GetEncryptedCredentials(ctx, orgID, tenant.ServiceScanner)
	if err != nil {
		return nil, err
	}

	creds, err := tenant.DecryptCredentials(c.encryptor, blob)
	if err != nil {
		return nil, err
	}

	baseURL := creds.Host
	if baseURL == "" {
		baseURL = c.cfg.BaseURL
	}
	if baseURL == "" || creds.Username == "" {
		return nil, shared.NewDomainError("CONFIGURATION",
			fmt.Sprintf("organisation %d has no scanner credentials assigned", orgID),
			shared.ErrConfiguration)
	}

	return &credentials{
		cacheKey: fmt.Sprintf("org:%d", orgID),
		baseURL:  baseURL,
		username: creds.Username,
		password: creds.Password,
	}, nil
}

func (c *Client) adminCredentials() (*credentials, error) {
	if c.cfg.BaseURL == "" || c.cfg.AdminUsername == "" {
		return nil, shared.NewDomainError("CONFIGURATION",
			"no administrative scanner credentials configured",
			shared.ErrConfiguration)
	}
	return &credentials{
		cacheKey: adminTokenKey,
		baseURL:  c.cfg.BaseURL,
		username: c.cfg.AdminUsername,
		password: c.cfg.AdminPassword,
	}, nil
}

// Do performs one gateway call with the tenant's credentials and retries
// exactly once when the cached session turns out to be invalid.
func (c *Client) Do(ctx context.Context, orgID int64, method, endpoint string, query url.Values, body any) (*Envelope, error) {
	creds, err := c.tenantCredentials(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, creds, method, endpoint, query, body)
}

// DoAdmin performs one gateway call with the shared administrative
// credentials, with the same single-retry semantics as Do.
func (c *Client) DoAdmin(ctx context.Context, method, endpoint string, query url.Values, body any) (*Envelope, error) {
	creds, err := c.adminCredentials()
	if err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, creds, method, endpoint, query, body)
}

func (c *Client) doWithRetry(ctx context.Context, creds *credentials, method, endpoint string, query url.Values, body any) (*Envelope, error) {
	env, err := c.do(ctx, creds, method, endpoint, query, body)
	if shared.IsAuthExpired(err) {
		// The stale session is already evicted; authenticate fresh and
		// retry once. A second rejection propagates.
		env, err = c.do(ctx, creds, method, endpoint, query, body)
	}
	return env, err
}

func (c *Client) do(ctx context.Context, creds *credentials, method, endpoint string, query url.Values, body any) (*Envelope, error) {
	sess, err := c.session(ctx, creds)
	if err != nil {
		return nil, err
	}

	env, status, err := c.request(ctx, creds.baseURL, method, endpoint, query, body, sess)
	if err != nil {
		metrics.ScannerRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, shared.NewDomainError("EXTERNAL_SERVICE",
			fmt.Sprintf("scanner request %s %s failed", method, endpoint),
			errors.Join(shared.ErrExternalService, err))
	}

	switch {
	case env.ErrorCode == codeInvalidToken:
		metrics.ScannerRequestsTotal.WithLabelValues(endpoint, "auth_expired").Inc()
		if err := c.tokens.Delete(ctx, creds.cacheKey); err != nil {
			c.logger.Warn("failed to evict scanner token", "key", creds.cacheKey, "error", err)
		}
		return nil, shared.NewDomainError("AUTH_EXPIRED",
			"scanner rejected session token", shared.ErrAuthExpired)

	case env.ErrorCode == codeNoData:
		metrics.ScannerRequestsTotal.WithLabelValues(endpoint, "no_data").Inc()
		return env, ErrNoData

	case env.ErrorCode != 0 || status != http.StatusOK:
		metrics.ScannerRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, shared.NewDomainError("EXTERNAL_SERVICE",
			fmt.Sprintf("scanner error %d (http %d): %s", env.ErrorCode, status, env.ErrorMsg),
			shared.ErrExternalService)
	}

	metrics.ScannerRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return env, nil
}

// session returns a cached session for the credential set, authenticating
// on a miss.
func (c *Client) session(ctx context.Context, creds *credentials) (*session, error) {
	if cached, err := c.tokens.Get(ctx, creds.cacheKey); err == nil && cached != "" {
		var sess session
		if err := json.Unmarshal([]byte(cached), &sess); err == nil {
			metrics.ScannerTokenCacheTotal.WithLabelValues("hit").Inc()
			return &sess, nil
		}
	}
	metrics.ScannerTokenCacheTotal.WithLabelValues("miss").Inc()

	return c.authenticate(ctx, creds)
}

// authenticate obtains a fresh session and caches it for the advertised
// timeout minus the safety margin.
func (c *Client) authenticate(ctx context.Context, creds *credentials) (*session, error) {
	body := map[string]string{
		"username": creds.username,
		"password": creds.password,
	}

	env, status, err := c.request(ctx, creds.baseURL, http.MethodPost, "/token", nil, body, nil)
	if err != nil {
		return nil, shared.NewDomainError("EXTERNAL_SERVICE",
			"scanner authentication failed",
			errors.Join(shared.ErrExternalService, err))
	}
	if env.ErrorCode != 0 || status != http.StatusOK {
		return nil, shared.NewDomainError("EXTERNAL_SERVICE",
			fmt.Sprintf("scanner authentication rejected: %d %s", env.ErrorCode, env.ErrorMsg),
			shared.ErrExternalService)
	}

	var data tokenData
	if err := env.Decode(&data); err != nil {
		return nil, shared.NewDomainError("EXTERNAL_SERVICE",
			"scanner token response malformed",
			errors.Join(shared.ErrExternalService, err))
	}

	sess := &session{
		Token:  fmt.Sprintf("%d", data.Token.Int64()),
		Cookie: env.cookie,
	}

	if ttl := c.tokenTTL(data.SessionTimeout.Int64()); ttl > 0 {
		raw, _ := json.Marshal(sess)
		if err := c.tokens.Set(ctx, creds.cacheKey, string(raw), ttl); err != nil {
			c.logger.Warn("failed to cache scanner token", "key", creds.cacheKey, "error", err)
		}
	}

	c.logger.Info("scanner session established", "key", creds.cacheKey)
	return sess, nil
}

// tokenTTL reduces the server-advertised timeout by the configured margin
// so a cached token is never presented at the expiry edge.
func (c *Client) tokenTTL(sessionTimeoutSeconds int64) time.Duration {
	if sessionTimeoutSeconds <= 0 {
		return 0
	}
	reduced := float64(sessionTimeoutSeconds) * (1 - c.cfg.TokenTTLMargin)
	return time.Duration(reduced * float64(time.Second))
}

// request performs the raw HTTP exchange and decodes the envelope. The
// session cookie observed on the response is threaded back through the
// envelope for authenticate to capture.
func (c *Client) request(ctx context.Context, baseURL, method, endpoint string, query url.Values, body any, sess *session) (*Envelope, int, error) {
	u := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		req.Header.Set(tokenHeader, sess.Token)
		if sess.Cookie != "" {
			req.AddCookie(&http.Cookie{Name: sessionCookie, Value: sess.Cookie})
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ScannerRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response envelope: %w", err)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookie {
			env.cookie = cookie.Value
		}
	}

	return &env, resp.StatusCode, nil
}
