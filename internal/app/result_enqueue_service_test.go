package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/infra/tenable"
	"github.com/vulnwarden/api/pkg/domain/job"
	"github.com/vulnwarden/api/pkg/domain/report"
	"github.com/vulnwarden/api/pkg/domain/scan"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

func remoteResult(id, scanID, status string, finish int64) *tenable.RemoteScanResult {
	r := &tenable.RemoteScanResult{
		ID:         id,
		Status:     status,
		StartTime:  tenable.Int64String(finish - 600),
		FinishTime: tenable.Int64String(finish),
	}
	r.Scan.ID = scanID
	r.Repository.Name = "prod"
	return r
}

func newEnqueueFixture(results ...*tenable.RemoteScanResult) (*app.ResultEnqueueService, *fakeJobQueue, *fakeScanRepo, *fakeReportRepo) {
	tenants := &fakeTenantRepo{orgs: []*tenant.Organisation{{ID: 1, Active: true}}}
	scans := newFakeScanRepo()
	reports := newFakeReportRepo()
	queue := &fakeJobQueue{}
	gw := &fakeGateway{results: map[int64][]*tenable.RemoteScanResult{1: results}}

	svc := app.NewResultEnqueueService(tenants, scans, reports, queue, gw, 2*time.Hour, logger.NewNop())
	return svc, queue, scans, reports
}

func TestResultEnqueue_EnqueuesCompletedRuns(t *testing.T) {
	svc, queue, scans, _ := newEnqueueFixture(
		remoteResult("900", "100", "Completed", 7000),
	)
	scans.add(1, &scan.Scan{TenableScanID: "100"})

	require.NoError(t, svc.Run(context.Background()))

	require.Len(t, queue.entries, 1)
	e := queue.entries[0]
	assert.Equal(t, job.TypeFetchVulnerabilities, e.Type)
	assert.Equal(t, int64(1), e.OrganisationID)
	assert.Equal(t, "100", e.Params.ScanID)
	assert.Equal(t, "900", e.Params.ScanResultID)
	assert.Equal(t, int64(7000), e.Params.LastModificationDate)
	assert.Nil(t, e.Status, "row starts pending")
	assert.Zero(t, e.Attempts)
}

func TestResultEnqueue_SkipsIncompleteRuns(t *testing.T) {
	svc, queue, scans, _ := newEnqueueFixture(
		remoteResult("900", "100", "Running", 7000),
		remoteResult("901", "100", "Error", 7100),
	)
	scans.add(1, &scan.Scan{TenableScanID: "100"})

	require.NoError(t, svc.Run(context.Background()))
	assert.Empty(t, queue.entries)
}

func TestResultEnqueue_SkipsAlreadyReportedRuns(t *testing.T) {
	svc, queue, scans, reports := newEnqueueFixture(
		remoteResult("900", "100", "Completed", 7000),
	)
	scans.add(1, &scan.Scan{TenableScanID: "100"})
	require.NoError(t, reports.Create(context.Background(), 1, report.New("100", "900", 7000)))

	require.NoError(t, svc.Run(context.Background()))
	assert.Empty(t, queue.entries)
}

func TestResultEnqueue_SkipsUnknownScans(t *testing.T) {
	svc, queue, _, _ := newEnqueueFixture(
		remoteResult("900", "100", "Completed", 7000),
	)

	require.NoError(t, svc.Run(context.Background()))
	assert.Empty(t, queue.entries)
}

func TestResultEnqueue_Idempotent(t *testing.T) {
	svc, queue, scans, _ := newEnqueueFixture(
		remoteResult("900", "100", "Completed", 7000),
	)
	scans.add(1, &scan.Scan{TenableScanID: "100"})

	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))

	assert.Len(t, queue.entries, 1, "same scan run never enqueued twice")
}
