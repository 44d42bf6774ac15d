package tenable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Typed operations over the raw request primitive. Scans and results
// belonging to backup repositories are filtered out here so no caller has
// to re-implement the exclusion.

const (
	scanFields       = "id,name,type,status,ipList,schedule,repository,createdTime,modifiedTime"
	scanResultFields = "id,name,status,repository,scan,startTime,finishTime"
)

// ListScans returns the tenant's scan definitions.
func (c *Client) ListScans(ctx context.Context, orgID int64) ([]*RemoteScan, error) {
	query := url.Values{"fields": {scanFields}}

	env, err := c.Do(ctx, orgID, http.MethodGet, "/scan", query, nil)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}

	var payload struct {
		Usable []*RemoteScan `json:"usable"`
	}
	if err := env.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode scan list: %w", err)
	}

	scans := make([]*RemoteScan, 0, len(payload.Usable))
	for _, s := range payload.Usable {
		if c.isBackupRepository(s.Repository.Name) {
			continue
		}
		scans = append(scans, s)
	}
	return scans, nil
}

// ListScanResults returns run instances finished after the given time.
func (c *Client) ListScanResults(ctx context.Context, orgID int64, since time.Time) ([]*RemoteScanResult, error) {
	query := url.Values{
		"fields":    {scanResultFields},
		"startTime": {fmt.Sprintf("%d", since.Unix())},
	}

	env, err := c.Do(ctx, orgID, http.MethodGet, "/scanResult", query, nil)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}

	var payload struct {
		Usable []*RemoteScanResult `json:"usable"`
	}
	if err := env.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode scan result list: %w", err)
	}

	results := make([]*RemoteScanResult, 0, len(payload.Usable))
	for _, r := range payload.Usable {
		if c.isBackupRepository(r.Repository.Name) {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// FetchVulnerabilities pulls the full vulnerability detail rows for one
// scan run. The vendor's empty-result code comes back as an empty slice.
func (c *Client) FetchVulnerabilities(ctx context.Context, orgID int64, scanResultID string) ([]RawVulnerability, error) {
	body := map[string]any{
		"type":       "vuln",
		"sourceType": "individual",
		"scanID":     scanResultID,
		"view":       "all",
		"query": map[string]any{
			"tool": "vulndetails",
			"type": "vuln",
		},
	}

	env, err := c.Do(ctx, orgID, http.MethodPost, "/analysis", nil, body)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return nil, nil
		}
		return nil, err
	}

	var payload struct {
		Results []RawVulnerability `json:"results"`
	}
	if err := env.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode analysis results: %w", err)
	}
	return payload.Results, nil
}

func (c *Client) isBackupRepository(name string) bool {
	if name == "" {
		return false
	}
	if c.cfg.BackupRepositoryPrefix != "" && strings.HasPrefix(name, c.cfg.BackupRepositoryPrefix) {
		return true
	}
	if c.cfg.BackupRepositorySuffix != "" && strings.HasSuffix(name, c.cfg.BackupRepositorySuffix) {
		return true
	}
	return false
}
