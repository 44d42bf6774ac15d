package tenable_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/internal/infra/tenable"
	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

type memoryTokenCache struct {
	mu      sync.Mutex
	values  map[string]string
	lastTTL time.Duration
}

func newMemoryTokenCache() *memoryTokenCache {
	return &memoryTokenCache{values: make(map[string]string)}
}

func (m *memoryTokenCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.lastTTL = ttl
	return nil
}

func (m *memoryTokenCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type stubTenantRepo struct {
	creds tenant.Credentials
}

func (s *stubTenantRepo) GetByID(ctx context.Context, id int64) (*tenant.Organisation, error) {
	return &tenant.Organisation{ID: id, Active: true}, nil
}

func (s *stubTenantRepo) ListActiveWithService(ctx context.Context, service tenant.ServiceName) ([]*tenant.Organisation, error) {
	return nil, nil
}

func (s *stubTenantRepo) GetEncryptedCredentials(ctx context.Context, orgID int64, service tenant.ServiceName) (string, error) {
	raw, err := json.Marshal(s.creds)
	return string(raw), err
}

// scannerStub is a minimal SecurityCenter double: a /token endpoint plus
// scripted envelopes for everything else.
type scannerStub struct {
	mu        sync.Mutex
	authCalls int
	dataCalls int
	// responses is consumed one envelope per data request; the last one
	// repeats once exhausted.
	responses []string
}

func (s *scannerStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.authCalls++
		n := s.authCalls
		s.mu.Unlock()

		http.SetCookie(w, &http.Cookie{Name: "TNS_SESSIONID", Value: fmt.Sprintf("cookie-%d", n)})
		fmt.Fprintf(w, `{"type":"regular","response":{"token":%d,"sessionTimeout":"3600"},"error_code":0,"error_msg":""}`, 1000+n)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		idx := s.dataCalls
		s.dataCalls++
		if idx >= len(s.responses) {
			idx = len(s.responses) - 1
		}
		body := s.responses[idx]
		s.mu.Unlock()

		fmt.Fprint(w, body)
	})
	return mux
}

func newTestClient(t *testing.T, baseURL string, tokens tenable.TokenCache) *tenable.Client {
	t.Helper()
	cfg := config.ScannerConfig{
		BaseURL:                baseURL,
		RequestTimeout:         5 * time.Second,
		TokenTTLMargin:         0.05,
		BackupRepositorySuffix: "-backup",
	}
	repo := &stubTenantRepo{creds: tenant.Credentials{
		Username: "svc",
		Password: "pw",
	}}
	return tenable.NewClient(cfg, repo, crypto.NewNoOpEncryptor(), tokens, logger.NewNop())
}

const emptyScanList = `{"type":"regular","response":{"usable":[]},"error_code":0,"error_msg":""}`

func TestClient_SessionCachedAcrossCalls(t *testing.T) {
	stub := &scannerStub{responses: []string{emptyScanList}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cache := newMemoryTokenCache()
	client := newTestClient(t, srv.URL, cache)

	_, err := client.ListScans(context.Background(), 7)
	require.NoError(t, err)
	_, err = client.ListScans(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.authCalls, "second call should reuse the cached session")
	assert.Equal(t, 2, stub.dataCalls)

	// TTL is the advertised 3600s shaved by the 5% margin.
	assert.InDelta(t, 3420, cache.lastTTL.Seconds(), 1)
}

func TestClient_InvalidTokenEvictsAndRetriesOnce(t *testing.T) {
	stub := &scannerStub{responses: []string{
		`{"type":"regular","response":{},"error_code":12,"error_msg":"Invalid token"}`,
		emptyScanList,
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cache := newMemoryTokenCache()
	client := newTestClient(t, srv.URL, cache)

	scans, err := client.ListScans(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, scans)

	// First auth, rejected data call, fresh auth, successful data call.
	assert.Equal(t, 2, stub.authCalls)
	assert.Equal(t, 2, stub.dataCalls)
}

func TestClient_InvalidTokenTwiceFails(t *testing.T) {
	stub := &scannerStub{responses: []string{
		`{"type":"regular","response":{},"error_code":12,"error_msg":"Invalid token"}`,
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, newMemoryTokenCache())

	_, err := client.ListScans(context.Background(), 7)
	require.Error(t, err)
	assert.Equal(t, 2, stub.dataCalls, "exactly one retry")
}

func TestClient_NoDataIsEmptySuccess(t *testing.T) {
	stub := &scannerStub{responses: []string{
		`{"type":"regular","response":{},"error_code":143,"error_msg":"No data"}`,
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, newMemoryTokenCache())

	scans, err := client.ListScans(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, scans)

	vulns, err := client.FetchVulnerabilities(context.Background(), 7, "901")
	require.NoError(t, err)
	assert.Empty(t, vulns)
}

func TestClient_VendorErrorSurfaces(t *testing.T) {
	stub := &scannerStub{responses: []string{
		`{"type":"regular","response":{},"error_code":74,"error_msg":"Unable to retrieve"}`,
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, newMemoryTokenCache())

	_, err := client.ListScans(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "74")
}

func TestClient_BackupRepositoriesFiltered(t *testing.T) {
	stub := &scannerStub{responses: []string{
		`{"type":"regular","response":{"usable":[
			{"id":"1","name":"weekly","repository":{"id":"10","name":"prod"}},
			{"id":"2","name":"weekly-copy","repository":{"id":"11","name":"prod-backup"}}
		]},"error_code":0,"error_msg":""}`,
	}}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := newTestClient(t, srv.URL, newMemoryTokenCache())

	scans, err := client.ListScans(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "1", scans[0].ID)
}
