package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/infra/tenable"
	"github.com/vulnwarden/api/pkg/domain/job"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
	"github.com/vulnwarden/api/pkg/logger"
)

func rawVuln(pluginID, ip string, port int64, severity string) tenable.RawVulnerability {
	r := tenable.RawVulnerability{
		PluginID:   pluginID,
		PluginName: "plugin " + pluginID,
		IP:         ip,
		Port:       tenable.Int64String(port),
		Protocol:   "TCP",
		SeeAlso:    "https://a.example\nhttps://b.example",
		CVE:        "CVE-2024-0001,CVE-2024-0002",
		FirstSeen:  tenable.Int64String(6000),
		LastSeen:   tenable.Int64String(7000),
		Count:      tenable.Int64String(3),
	}
	r.Severity.ID = severity
	return r
}

type vulnSyncFixture struct {
	svc     *app.VulnSyncService
	queue   *fakeJobQueue
	vulns   *fakeVulnRepo
	reports *fakeReportRepo
	gw      *fakeGateway
	inv     *fakeInventoryRepo
}

func newVulnSyncFixture(t *testing.T) *vulnSyncFixture {
	t.Helper()
	f := &vulnSyncFixture{
		queue:   &fakeJobQueue{},
		vulns:   newFakeVulnRepo(),
		reports: newFakeReportRepo(),
		gw:      &fakeGateway{vulns: make(map[string][]tenable.RawVulnerability)},
		inv:     &fakeInventoryRepo{scores: map[string]float64{}},
	}
	f.svc = app.NewVulnSyncService(f.queue, f.vulns, f.reports, f.inv, f.gw, 5, logger.NewNop())
	return f
}

func (f *vulnSyncFixture) enqueue(t *testing.T, params job.Params) *job.Entry {
	t.Helper()
	e := job.NewFetchVulnerabilities(1, params)
	require.NoError(t, f.queue.Insert(context.Background(), e))
	return e
}

func TestVulnSync_EmptyQueueIsNoOp(t *testing.T) {
	f := newVulnSyncFixture(t)
	require.NoError(t, f.svc.Run(context.Background()))
}

func TestVulnSync_ImportsAndDeletesRow(t *testing.T) {
	f := newVulnSyncFixture(t)
	f.gw.vulns["900"] = []tenable.RawVulnerability{
		rawVuln("19506", "10.0.0.5", 443, "3"),
		rawVuln("10180", "10.0.0.6", 0, "0"),
	}
	f.inv.scores["10.0.0.5"] = 8.4
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})

	require.NoError(t, f.svc.Run(context.Background()))

	assert.Empty(t, f.queue.entries, "completed row is deleted")
	assert.Equal(t, "900", f.gw.fetchedID)
	assert.Len(t, f.vulns.docs, 2)

	var high *vulnerability.Vulnerability
	for _, v := range f.vulns.docs {
		if v.PluginID == "19506" {
			high = v
		}
	}
	require.NotNil(t, high)
	assert.Equal(t, vulnerability.SeverityHigh, high.Severity)
	assert.Equal(t, "443/tcp", high.PortProtocol)
	assert.Equal(t, "100", high.TenableScanID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, high.SeeAlso)
	assert.Equal(t, []string{"CVE-2024-0001", "CVE-2024-0002"}, high.CVE)
	require.NotNil(t, high.RiskScore)
	assert.Equal(t, 8.4, *high.RiskScore)
}

func TestVulnSync_ZeroVulnerabilitiesIsTerminalSuccess(t *testing.T) {
	f := newVulnSyncFixture(t)
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})

	require.NoError(t, f.svc.Run(context.Background()))

	assert.Empty(t, f.queue.entries, "empty result still completes the row")
	assert.Empty(t, f.vulns.docs)
	assert.Empty(t, f.reports.reports, "no report for an empty run")
}

func TestVulnSync_FailureReleasesRowKeepingAttempts(t *testing.T) {
	f := newVulnSyncFixture(t)
	f.gw.fetchErr = errors.New("scanner unreachable")
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})

	err := f.svc.Run(context.Background())
	require.Error(t, err)

	require.Len(t, f.queue.entries, 1)
	e := f.queue.entries[0]
	assert.Nil(t, e.Status, "row returned to pending")
	assert.Equal(t, 1, e.Attempts, "attempt consumed")
}

func TestVulnSync_RowAtCeilingNeverClaimed(t *testing.T) {
	f := newVulnSyncFixture(t)
	f.gw.fetchErr = errors.New("scanner unreachable")
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})

	for i := 0; i < 5; i++ {
		require.Error(t, f.svc.Run(context.Background()))
	}

	// Attempts exhausted: the next run claims nothing and succeeds.
	require.NoError(t, f.svc.Run(context.Background()))
	require.Len(t, f.queue.entries, 1, "exhausted row remains for inspection")
	assert.Equal(t, 5, f.queue.entries[0].Attempts)
}

func TestVulnSync_InventoryFailureIsNotFatal(t *testing.T) {
	f := newVulnSyncFixture(t)
	f.gw.vulns["900"] = []tenable.RawVulnerability{rawVuln("19506", "10.0.0.5", 443, "2")}
	f.inv.err = errors.New("inventory down")
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})

	require.NoError(t, f.svc.Run(context.Background()))

	require.Len(t, f.vulns.docs, 1)
	for _, v := range f.vulns.docs {
		assert.Nil(t, v.RiskScore, "imported without enrichment")
	}
}

func TestVulnSync_ReportCreatedAndDeduplicated(t *testing.T) {
	f := newVulnSyncFixture(t)
	f.gw.vulns["900"] = []tenable.RawVulnerability{rawVuln("19506", "10.0.0.5", 443, "2")}
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})

	require.NoError(t, f.svc.Run(context.Background()))

	rep, err := f.reports.FindByScanAndModification(context.Background(), 1, "100", 7000)
	require.NoError(t, err)
	assert.Equal(t, "900", rep.ScanResultID)
	assert.Len(t, rep.VulnerabilityIDs, 1)

	// A retried run for the same snapshot merges rather than duplicates.
	f.enqueue(t, job.Params{ScanID: "100", ScanResultID: "900", LastModificationDate: 7000})
	require.NoError(t, f.svc.Run(context.Background()))

	rep, err = f.reports.FindByScanAndModification(context.Background(), 1, "100", 7000)
	require.NoError(t, err)
	assert.Len(t, rep.VulnerabilityIDs, 1)
	assert.Len(t, f.vulns.docs, 1)
}
