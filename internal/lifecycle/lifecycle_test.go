package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

func job(status models.JobStatus, escrow models.EscrowStatus) *models.Job {
	return &models.Job{Status: status, EscrowStatus: escrow}
}

func TestCanTransition_AdjacencyTable(t *testing.T) {
	cases := []struct {
		from    models.JobStatus
		escrow  models.EscrowStatus
		to      models.JobStatus
		allowed bool
	}{
		{models.JobStatusPendingValidation, models.EscrowStatusNotFunded, models.JobStatusOpen, true},
		{models.JobStatusPendingValidation, models.EscrowStatusNotFunded, models.JobStatusRejected, true},
		{models.JobStatusPendingValidation, models.EscrowStatusNotFunded, models.JobStatusAssigned, false},
		{models.JobStatusOpen, models.EscrowStatusNotFunded, models.JobStatusAssigned, true},
		{models.JobStatusOpen, models.EscrowStatusNotFunded, models.JobStatusExpired, true},
		{models.JobStatusOpen, models.EscrowStatusNotFunded, models.JobStatusInProgress, false},
		{models.JobStatusAssigned, models.EscrowStatusFunded, models.JobStatusInProgress, true},
		{models.JobStatusAssigned, models.EscrowStatusFunded, models.JobStatusDisputed, true},
		{models.JobStatusInProgress, models.EscrowStatusFunded, models.JobStatusCompleted, true},
		{models.JobStatusInProgress, models.EscrowStatusFunded, models.JobStatusDisputed, true},
		{models.JobStatusDisputed, models.EscrowStatusFunded, models.JobStatusCompleted, true},
		{models.JobStatusDisputed, models.EscrowStatusFunded, models.JobStatusRefunded, true},
	}

	for _, tc := range cases {
		decision := CanTransition(job(tc.from, tc.escrow), tc.to)
		assert.Equalf(t, tc.allowed, decision.Allowed, "%s → %s", tc.from, tc.to)
		if !tc.allowed {
			assert.NotEmpty(t, decision.Reason)
		}
	}
}

func TestCanTransition_TerminalStatuses(t *testing.T) {
	for _, terminal := range []models.JobStatus{
		models.JobStatusCompleted,
		models.JobStatusRejected,
		models.JobStatusRefunded,
		models.JobStatusExpired,
	} {
		decision := CanTransition(job(terminal, models.EscrowStatusNotFunded), models.JobStatusOpen)
		assert.Falsef(t, decision.Allowed, "из %s переходы должны быть запрещены", terminal)
		assert.NotEmpty(t, decision.Reason)
	}
}

func TestCanTransition_CompleteRequiresFundedEscrow(t *testing.T) {
	decision := CanTransition(job(models.JobStatusInProgress, models.EscrowStatusNotFunded), models.JobStatusCompleted)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "эскроу")

	decision = CanTransition(job(models.JobStatusInProgress, models.EscrowStatusFunded), models.JobStatusCompleted)
	assert.True(t, decision.Allowed)
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	decision := CanTransition(job(models.JobStatusOpen, models.EscrowStatusNotFunded), models.JobStatus("bogus"))
	assert.False(t, decision.Allowed)
}

func TestCanTransitionEscrow_Funded(t *testing.T) {
	decision := CanTransitionEscrow(job(models.JobStatusAssigned, models.EscrowStatusNotFunded), models.EscrowStatusFunded)
	assert.True(t, decision.Allowed)

	decision = CanTransitionEscrow(job(models.JobStatusAssigned, models.EscrowStatusFunded), models.EscrowStatusFunded)
	assert.False(t, decision.Allowed)

	decision = CanTransitionEscrow(job(models.JobStatusOpen, models.EscrowStatusNotFunded), models.EscrowStatusFunded)
	assert.False(t, decision.Allowed)
}

func TestCanTransitionEscrow_Released(t *testing.T) {
	decision := CanTransitionEscrow(job(models.JobStatusCompleted, models.EscrowStatusFunded), models.EscrowStatusReleased)
	assert.True(t, decision.Allowed)

	decision = CanTransitionEscrow(job(models.JobStatusInProgress, models.EscrowStatusFunded), models.EscrowStatusReleased)
	assert.False(t, decision.Allowed)

	decision = CanTransitionEscrow(job(models.JobStatusCompleted, models.EscrowStatusReleased), models.EscrowStatusReleased)
	assert.False(t, decision.Allowed)
}

func TestCanTransitionEscrow_Refunded(t *testing.T) {
	decision := CanTransitionEscrow(job(models.JobStatusDisputed, models.EscrowStatusFunded), models.EscrowStatusRefunded)
	assert.True(t, decision.Allowed)

	decision = CanTransitionEscrow(job(models.JobStatusDisputed, models.EscrowStatusNotFunded), models.EscrowStatusRefunded)
	assert.False(t, decision.Allowed)
}
