// Package app contains the application services: the scheduled sync
// pipeline and the vulnerability lifecycle engine.
package app

import (
	"context"
	"time"

	"github.com/vulnwarden/api/internal/infra/tenable"
)

// Gateway is the outbound scanning-service surface the sync jobs consume.
// Implemented by the tenable client; faked in tests.
type Gateway interface {
	ListScans(ctx context.Context, orgID int64) ([]*tenable.RemoteScan, error)
	ListScanResults(ctx context.Context, orgID int64, since time.Time) ([]*tenable.RemoteScanResult, error)
	FetchVulnerabilities(ctx context.Context, orgID int64, scanResultID string) ([]tenable.RawVulnerability, error)
}
