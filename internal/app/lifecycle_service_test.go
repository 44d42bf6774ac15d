package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
	"github.com/vulnwarden/api/pkg/logger"
)

var (
	customer = tenant.Identity{UserID: "cust-1", UserType: tenant.UserTypeCustomer, Organisations: []int64{1}}
	staff    = tenant.Identity{UserID: "staff-1", UserType: tenant.UserTypeStaff}
)

func newLifecycleFixture() (*app.LifecycleService, *fakeVulnRepo) {
	vulns := newFakeVulnRepo()
	return app.NewLifecycleService(vulns, logger.NewNop()), vulns
}

func seedVuln(vulns *fakeVulnRepo, pluginID, target string) *vulnerability.Vulnerability {
	return vulns.add(&vulnerability.Vulnerability{
		PluginID:     pluginID,
		Name:         "plugin " + pluginID,
		Target:       target,
		Port:         443,
		Protocol:     "tcp",
		PortProtocol: "443/tcp",
		Severity:     vulnerability.SeverityMedium,
	})
}

func TestLock_Outcomes(t *testing.T) {
	t.Run("all requested locked", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")
		b := seedVuln(vulns, "2", "10.0.0.2")

		res, err := svc.Lock(context.Background(), 1, []string{a.ID.Hex(), b.ID.Hex()}, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, app.LockOutcomeLocked, res.Outcome)
		assert.Equal(t, int64(2), res.Matched)
	})

	t.Run("partial when another user holds some", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")
		b := seedVuln(vulns, "2", "10.0.0.2")
		b.Locked = &vulnerability.Lock{UserID: "other", LockedAt: time.Now()}

		res, err := svc.Lock(context.Background(), 1, []string{a.ID.Hex(), b.ID.Hex()}, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, app.LockOutcomePartial, res.Outcome)
		assert.Equal(t, int64(1), res.Matched)
	})

	t.Run("already locked when none match", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")
		a.Locked = &vulnerability.Lock{UserID: "other", LockedAt: time.Now()}

		res, err := svc.Lock(context.Background(), 1, []string{a.ID.Hex()}, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, app.LockOutcomeAlreadyLocked, res.Outcome)
		assert.Zero(t, res.Matched)
	})

	t.Run("relocking own lock is idempotent", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")
		a.Locked = &vulnerability.Lock{UserID: "cust-1", LockedAt: time.Now()}

		res, err := svc.Lock(context.Background(), 1, []string{a.ID.Hex()}, "cust-1")
		require.NoError(t, err)
		assert.Equal(t, app.LockOutcomeLocked, res.Outcome)
	})

	t.Run("no ids is a validation error", func(t *testing.T) {
		svc, _ := newLifecycleFixture()
		_, err := svc.Lock(context.Background(), 1, nil, "cust-1")
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestUnlock_OnlyOwnLocks(t *testing.T) {
	svc, vulns := newLifecycleFixture()
	a := seedVuln(vulns, "1", "10.0.0.1")
	a.Locked = &vulnerability.Lock{UserID: "other", LockedAt: time.Now()}

	matched, err := svc.Unlock(context.Background(), 1, []string{a.ID.Hex()}, "cust-1")
	require.NoError(t, err)
	assert.Zero(t, matched)
	assert.NotNil(t, a.Locked, "foreign lock untouched")
}

func TestPerformAction(t *testing.T) {
	t.Run("applies and persists", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")

		v, err := svc.PerformAction(context.Background(), 1, a.ID.Hex(),
			vulnerability.NewFalsePositive("duplicate"), customer)
		require.NoError(t, err)
		assert.Equal(t, vulnerability.KindFalsePositive, v.ActiveAction())
		require.Len(t, v.History, 1)
		assert.Equal(t, vulnerability.HistoryPending, v.History[0].Status)
	})

	t.Run("locked by another user conflicts", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")
		a.Locked = &vulnerability.Lock{UserID: "other", LockedAt: time.Now()}

		_, err := svc.PerformAction(context.Background(), 1, a.ID.Hex(),
			vulnerability.NewFalsePositive("duplicate"), customer)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrConflict)

		var derr *shared.DomainError
		require.ErrorAs(t, err, &derr)
		assert.Equal(t, "LOCKED", derr.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc, _ := newLifecycleFixture()
		_, err := svc.PerformAction(context.Background(), 1, "not-an-id",
			vulnerability.NewFalsePositive("duplicate"), customer)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestPerformBulkAction_BestEffort(t *testing.T) {
	svc, vulns := newLifecycleFixture()
	a := seedVuln(vulns, "19506", "10.0.0.1")
	b := seedVuln(vulns, "19506", "10.0.0.2")
	b.Locked = &vulnerability.Lock{UserID: "other", LockedAt: time.Now()}

	res, err := svc.PerformBulkAction(context.Background(), 1,
		vulnerability.ActionFilter{PluginIDs: []string{"19506"}},
		vulnerability.NewFalsePositive("fleet-wide duplicate"), customer)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Applied)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, b.ID.Hex(), res.Failures[0].ID)

	assert.Equal(t, vulnerability.KindFalsePositive, a.ActiveAction())
	assert.Empty(t, b.ActiveAction(), "locked document untouched")
}

func TestHistoryReview(t *testing.T) {
	t.Run("approve copies values and is staff only", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")

		date := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
		v, err := svc.PerformAction(context.Background(), 1, a.ID.Hex(),
			vulnerability.NewProposedCloseDate(date, "patch window"), customer)
		require.NoError(t, err)
		entryID := v.History[0].ID

		_, err = svc.ApproveHistory(context.Background(), 1, a.ID.Hex(), entryID, customer)
		assert.ErrorIs(t, err, shared.ErrForbidden)

		v, err = svc.ApproveHistory(context.Background(), 1, a.ID.Hex(), entryID, staff)
		require.NoError(t, err)
		assert.Equal(t, vulnerability.HistoryApproved, v.History[0].Status)
		require.NotNil(t, v.ProposedCloseDateField)
		assert.True(t, v.ProposedCloseDateField.Date.Equal(date))
	})

	t.Run("reject requires reason", func(t *testing.T) {
		svc, vulns := newLifecycleFixture()
		a := seedVuln(vulns, "1", "10.0.0.1")

		v, err := svc.PerformAction(context.Background(), 1, a.ID.Hex(),
			vulnerability.NewFalsePositive("duplicate"), customer)
		require.NoError(t, err)
		entryID := v.History[0].ID

		_, err = svc.RejectHistory(context.Background(), 1, a.ID.Hex(), entryID, "", staff)
		assert.ErrorIs(t, err, shared.ErrValidation)

		v, err = svc.RejectHistory(context.Background(), 1, a.ID.Hex(), entryID, "evidence insufficient", staff)
		require.NoError(t, err)
		assert.Equal(t, vulnerability.HistoryRejected, v.History[0].Status)
	})
}

func TestNotes_LockGated(t *testing.T) {
	svc, vulns := newLifecycleFixture()
	a := seedVuln(vulns, "1", "10.0.0.1")
	a.Locked = &vulnerability.Lock{UserID: "other", LockedAt: time.Now()}

	_, err := svc.AddNote(context.Background(), 1, a.ID.Hex(), "text", customer)
	assert.ErrorIs(t, err, shared.ErrConflict)

	err = svc.UpdateNote(context.Background(), 1, a.ID.Hex(), "note-1", "text", customer)
	assert.ErrorIs(t, err, shared.ErrConflict)

	err = svc.DeleteNote(context.Background(), 1, a.ID.Hex(), "note-1", customer)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestSoftDelete_Service(t *testing.T) {
	svc, vulns := newLifecycleFixture()
	a := seedVuln(vulns, "1", "10.0.0.1")

	require.NoError(t, svc.SoftDelete(context.Background(), 1, a.ID.Hex(), customer))
	assert.True(t, a.IsDeleted)

	listed, err := svc.List(context.Background(), 1, vulnerability.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed, "soft-deleted findings excluded by default")
}
