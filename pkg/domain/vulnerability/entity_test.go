package vulnerability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
)

func newVuln() *vulnerability.Vulnerability {
	return &vulnerability.Vulnerability{
		PluginID:     "19506",
		Name:         "Nessus Scan Information",
		Target:       "10.0.0.5",
		Port:         443,
		Protocol:     "tcp",
		PortProtocol: "443/tcp",
		Severity:     vulnerability.SeverityMedium,
	}
}

func TestIsLocked(t *testing.T) {
	t.Run("unlocked never blocks", func(t *testing.T) {
		assert.False(t, vulnerability.IsLocked(nil, "user-1"))
	})

	t.Run("holder keeps editing", func(t *testing.T) {
		lock := &vulnerability.Lock{UserID: "user-1", LockedAt: time.Now()}
		assert.False(t, vulnerability.IsLocked(lock, "user-1"))
	})

	t.Run("other user is blocked", func(t *testing.T) {
		lock := &vulnerability.Lock{UserID: "user-1", LockedAt: time.Now()}
		assert.True(t, vulnerability.IsLocked(lock, "user-2"))
	})
}

func TestSetAction_SingleActiveAction(t *testing.T) {
	v := newVuln()

	entry, err := v.SetAction(vulnerability.NewFalsePositive("duplicate of 19507"), "user-1", tenant.UserTypeCustomer)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, v.FalsePositiveField)

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, 0)
	entry, err = v.SetAction(vulnerability.NewSecurityException(start, end, "accepted risk"), "user-1", tenant.UserTypeCustomer)
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Setting a second action replaces the first.
	assert.Nil(t, v.FalsePositiveField)
	assert.NotNil(t, v.SecurityExceptionField)
	assert.Nil(t, v.ProposedCloseDateField)
	assert.Equal(t, vulnerability.KindSecurityException, v.ActiveAction())
}

func TestSetAction_HistoryStatus(t *testing.T) {
	t.Run("customer update starts pending", func(t *testing.T) {
		v := newVuln()
		entry, err := v.SetAction(vulnerability.NewFalsePositive("not exploitable"), "cust-1", tenant.UserTypeCustomer)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, vulnerability.HistoryPending, entry.Status)
	})

	t.Run("staff update applies approved", func(t *testing.T) {
		v := newVuln()
		entry, err := v.SetAction(vulnerability.NewFalsePositive("not exploitable"), "staff-1", tenant.UserTypeStaff)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, vulnerability.HistoryApproved, entry.Status)
	})

	t.Run("proposed close date always needs approval", func(t *testing.T) {
		v := newVuln()
		date := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
		entry, err := v.SetAction(vulnerability.NewProposedCloseDate(date, "patch window"), "staff-1", tenant.UserTypeStaff)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, vulnerability.HistoryProposed, entry.Status)
	})
}

func TestSetAction_NoChangeNoHistory(t *testing.T) {
	v := newVuln()

	entry, err := v.SetAction(vulnerability.NewFalsePositive("duplicate"), "user-1", tenant.UserTypeCustomer)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Len(t, v.History, 1)

	// Re-applying the identical payload appends nothing.
	entry, err = v.SetAction(vulnerability.NewFalsePositive("duplicate"), "user-1", tenant.UserTypeCustomer)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Len(t, v.History, 1)
}

func TestSetAction_InvalidPayload(t *testing.T) {
	v := newVuln()

	_, err := v.SetAction(vulnerability.NewFalsePositive(""), "user-1", tenant.UserTypeCustomer)
	assert.ErrorIs(t, err, shared.ErrValidation)

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = v.SetAction(vulnerability.NewSecurityException(start, start, "same day"), "user-1", tenant.UserTypeCustomer)
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.Empty(t, v.ActiveAction())
	assert.Empty(t, v.History)
}

func TestApproveHistory(t *testing.T) {
	t.Run("copies proposed values onto the live field", func(t *testing.T) {
		v := newVuln()
		date := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
		entry, err := v.SetAction(vulnerability.NewProposedCloseDate(date, "patch window"), "cust-1", tenant.UserTypeCustomer)
		require.NoError(t, err)

		require.NoError(t, v.ApproveHistory(entry.ID, "staff-1"))

		require.NotNil(t, v.ProposedCloseDateField)
		assert.True(t, v.ProposedCloseDateField.Date.Equal(date))
		assert.Equal(t, vulnerability.HistoryApproved, v.History[0].Status)
		assert.Equal(t, "staff-1", v.History[0].ReviewedBy)
		require.NotNil(t, v.History[0].ReviewedAt)
	})

	t.Run("already reviewed entry conflicts", func(t *testing.T) {
		v := newVuln()
		entry, err := v.SetAction(vulnerability.NewFalsePositive("dup"), "cust-1", tenant.UserTypeCustomer)
		require.NoError(t, err)

		require.NoError(t, v.ApproveHistory(entry.ID, "staff-1"))
		err = v.ApproveHistory(entry.ID, "staff-2")
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("unknown entry", func(t *testing.T) {
		v := newVuln()
		err := v.ApproveHistory("missing", "staff-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestRejectHistory(t *testing.T) {
	t.Run("requires a reason", func(t *testing.T) {
		v := newVuln()
		entry, err := v.SetAction(vulnerability.NewFalsePositive("dup"), "cust-1", tenant.UserTypeCustomer)
		require.NoError(t, err)

		err = v.RejectHistory(entry.ID, "staff-1", "")
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.Equal(t, vulnerability.HistoryPending, v.History[0].Status)
	})

	t.Run("records reviewer and reason", func(t *testing.T) {
		v := newVuln()
		entry, err := v.SetAction(vulnerability.NewFalsePositive("dup"), "cust-1", tenant.UserTypeCustomer)
		require.NoError(t, err)

		require.NoError(t, v.RejectHistory(entry.ID, "staff-1", "evidence insufficient"))
		assert.Equal(t, vulnerability.HistoryRejected, v.History[0].Status)
		assert.Equal(t, "evidence insufficient", v.History[0].RejectReason)

		// The live field is untouched by a rejection.
		assert.NotNil(t, v.FalsePositiveField)
	})
}

func TestNotes(t *testing.T) {
	v := newVuln()

	note, err := v.AddNote("verified with the host owner", "user-1")
	require.NoError(t, err)
	require.NotNil(t, note)
	require.NotEmpty(t, note.ID)

	require.NoError(t, v.UpdateNote(note.ID, "host owner confirmed", "user-2"))
	assert.Equal(t, "host owner confirmed", v.Notes[0].Note)
	assert.Equal(t, "user-2", v.Notes[0].UpdatedBy)

	require.NoError(t, v.DeleteNote(note.ID))
	assert.Empty(t, v.Notes)

	_, err = v.AddNote("", "user-1")
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.ErrorIs(t, v.UpdateNote("missing", "text", "user-1"), shared.ErrNotFound)
	assert.ErrorIs(t, v.DeleteNote("missing"), shared.ErrNotFound)
}

func TestSoftDelete(t *testing.T) {
	v := newVuln()
	v.SoftDelete()

	assert.True(t, v.IsDeleted)
	require.NotNil(t, v.SoftDeletedAt)
}
