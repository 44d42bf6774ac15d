// Package tenable implements the outbound gateway to the Tenable
// SecurityCenter REST API: session authentication, per-tenant token
// caching and the uniform request primitive every sync job goes through.
package tenable

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vulnwarden/api/pkg/domain/scan"
)

// Vendor error codes carried in the response envelope.
const (
	codeInvalidToken = 12
	codeNoData       = 143
)

// Envelope is the uniform SecurityCenter response wrapper. A non-zero
// ErrorCode marks a vendor-level failure even on HTTP 200.
type Envelope struct {
	Type      string          `json:"type"`
	Response  json.RawMessage `json:"response"`
	ErrorCode int             `json:"error_code"`
	ErrorMsg  string          `json:"error_msg"`

	// cookie is the session cookie observed on the HTTP response, set by
	// the transport and consumed during authentication.
	cookie string
}

// Decode unmarshals the response payload into out.
func (e *Envelope) Decode(out any) error {
	if len(e.Response) == 0 {
		return fmt.Errorf("empty response payload")
	}
	if err := json.Unmarshal(e.Response, out); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}

// Int64String decodes numeric fields the scanner serves as either JSON
// numbers or quoted strings.
type Int64String int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Int64String) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric field %q: %w", s, err)
	}
	*n = Int64String(v)
	return nil
}

// Int64 returns the plain value.
func (n Int64String) Int64() int64 { return int64(n) }

type tokenData struct {
	Token          Int64String `json:"token"`
	SessionTimeout Int64String `json:"sessionTimeout"`
}

// session is the cached authentication state for one credential set.
type session struct {
	Token  string `json:"token"`
	Cookie string `json:"cookie"`
}

// RemoteSchedule is the scanner-side schedule block.
type RemoteSchedule struct {
	Type       string `json:"type"`
	Start      string `json:"start"`
	RepeatRule string `json:"repeatRule"`
	Timezone   string `json:"timezone"`
}

// RemoteScan is a scan definition as served by the scanner.
type RemoteScan struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	IPList     string         `json:"ipList"`
	Schedule   RemoteSchedule `json:"schedule"`
	Repository struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"repository"`
	CreatedAt  Int64String `json:"createdTime"`
	ModifiedAt Int64String `json:"modifiedTime"`
}

// ToScan converts the remote definition into the local mirror shape.
func (r *RemoteScan) ToScan() *scan.Scan {
	now := time.Now()
	return &scan.Scan{
		TenableScanID: r.ID,
		Name:          r.Name,
		Type:          r.Type,
		RepeatRule:    r.Schedule.RepeatRule,
		Schedule: scan.Schedule{
			Timezone:  r.Schedule.Timezone,
			StartTime: r.Schedule.Start,
			Frequency: r.Schedule.Type,
		},
		Targets:   splitTargets(r.IPList),
		Enabled:   !strings.EqualFold(r.Status, "disabled"),
		ScanStart: r.CreatedAt.Int64(),
		ScanEnd:   r.ModifiedAt.Int64(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func splitTargets(ipList string) []string {
	if ipList == "" {
		return nil
	}
	raw := strings.FieldsFunc(ipList, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	targets := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}

// RemoteScanResult is a completed (or in-flight) scan run instance.
type RemoteScanResult struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Repository struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"repository"`
	Scan struct {
		ID string `json:"id"`
	} `json:"scan"`
	StartTime  Int64String `json:"startTime"`
	FinishTime Int64String `json:"finishTime"`
}

// Completed reports whether the run finished successfully upstream.
func (r *RemoteScanResult) Completed() bool {
	return strings.EqualFold(r.Status, "Completed")
}

// RawVulnerability is one analysis row before enrichment.
type RawVulnerability struct {
	PluginID    string `json:"pluginID"`
	PluginName  string `json:"pluginName"`
	Synopsis    string `json:"synopsis"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Severity    struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"severity"`
	IP        string      `json:"ip"`
	DNSName   string      `json:"dnsName"`
	Port      Int64String `json:"port"`
	Protocol  string      `json:"protocol"`
	SeeAlso   string      `json:"seeAlso"`
	CVE       string      `json:"cve"`
	FirstSeen Int64String `json:"firstSeen"`
	LastSeen  Int64String `json:"lastSeen"`
	Count     Int64String `json:"total"`
}
