package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

type mockJobSweepRepo struct {
	mock.Mock
}

func (m *mockJobSweepRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListExpiryCandidates(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListStaleFundedCompleted(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListUnfundedAssigned(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListOpenWithoutQuotes(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListFundedNotStarted(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobSweepRepo) ListReleasedWithoutReview(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Job), args.Error(1)
}

type mockEscrowSweeper struct {
	mock.Mock
}

func (m *mockEscrowSweeper) ReleaseEscrow(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockEscrowSweeper) RepairStuckFunding(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockQuoteSweepRepo struct {
	mock.Mock
}

func (m *mockQuoteSweepRepo) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]models.Quote, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Quote), args.Error(1)
}

type mockPayoutSweepRepo struct {
	mock.Mock
}

func (m *mockPayoutSweepRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Payout, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Payout), args.Error(1)
}

func (m *mockPayoutSweepRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.PayoutStatus, notes *string) (*models.Payout, error) {
	args := m.Called(ctx, id, status, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payout), args.Error(1)
}

type mockDisputeSweepRepo struct {
	mock.Mock
}

func (m *mockDisputeSweepRepo) ListStaleUnresolved(ctx context.Context, cutoff time.Time) ([]models.Dispute, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeSweepRepo) MarkInvestigating(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockAdminLister struct {
	mock.Mock
}

func (m *mockAdminLister) ListAdmins(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.User), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{
		SweepInterval:     time.Hour,
		JobExpiryDays:     30,
		EscrowReleaseDays: 7,
		QuoteExpiryDays:   14,
		PayoutExpiryDays:  14,
	}
}

func TestScheduler_ReleaseStaleEscrow_SecondRunReleasesNothing(t *testing.T) {
	jobs := new(mockJobSweepRepo)
	escrow := new(mockEscrowSweeper)
	s := New(testConfig(), jobs, nil, nil, nil, escrow, nil, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		Status:       models.JobStatusCompleted,
		EscrowStatus: models.EscrowStatusFunded,
	}

	// Первый проход находит заявку и выплачивает средства, после чего
	// она выходит из выборки.
	jobs.On("ListStaleFundedCompleted", ctx, mock.Anything).Return([]models.Job{stale}, nil).Once()
	jobs.On("ListStaleFundedCompleted", ctx, mock.Anything).Return([]models.Job{}, nil)
	escrow.On("ReleaseEscrow", ctx, stale.ID).Return(&stale, nil).Once()

	released, err := s.ReleaseStaleEscrow(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 1, released)

	released, err = s.ReleaseStaleEscrow(ctx, now)
	assert.NoError(t, err)
	assert.Equal(t, 0, released)

	escrow.AssertNumberOfCalls(t, "ReleaseEscrow", 1)
}

func TestScheduler_ReleaseStaleEscrow_ErrorDoesNotStopSweep(t *testing.T) {
	jobs := new(mockJobSweepRepo)
	escrow := new(mockEscrowSweeper)
	s := New(testConfig(), jobs, nil, nil, nil, escrow, nil, nil)
	ctx := context.Background()

	first := models.Job{ID: uuid.New(), Status: models.JobStatusCompleted, EscrowStatus: models.EscrowStatusFunded}
	second := models.Job{ID: uuid.New(), Status: models.JobStatusCompleted, EscrowStatus: models.EscrowStatusFunded}

	jobs.On("ListStaleFundedCompleted", ctx, mock.Anything).Return([]models.Job{first, second}, nil)
	escrow.On("ReleaseEscrow", ctx, first.ID).Return(nil, assert.AnError)
	escrow.On("ReleaseEscrow", ctx, second.ID).Return(&second, nil)

	released, err := s.ReleaseStaleEscrow(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestScheduler_ExpireStaleJobs(t *testing.T) {
	jobs := new(mockJobSweepRepo)
	notifier := new(mockNotifier)
	s := New(testConfig(), jobs, nil, nil, nil, nil, nil, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	open := models.Job{
		ID:           uuid.New(),
		ClientID:     clientID,
		Status:       models.JobStatusOpen,
		EscrowStatus: models.EscrowStatusNotFunded,
	}
	expired := open
	expired.Status = models.JobStatusExpired

	jobs.On("ListExpiryCandidates", ctx, mock.Anything).Return([]models.Job{open}, nil)
	jobs.On("UpdateStatus", ctx, open.ID, models.JobStatusExpired).Return(&expired, nil)
	notifier.On("CreateNotificationForWS", ctx, clientID, "job.expired", mock.Anything).Return(nil)

	n, err := s.ExpireStaleJobs(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	jobs.AssertExpectations(t)
}

func TestScheduler_ExpireStaleJobs_SkipsForbiddenTransition(t *testing.T) {
	jobs := new(mockJobSweepRepo)
	s := New(testConfig(), jobs, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	// Заявка в работе не должна устаревать, даже если выборка её вернула.
	inProgress := models.Job{
		ID:           uuid.New(),
		Status:       models.JobStatusInProgress,
		EscrowStatus: models.EscrowStatusFunded,
	}
	jobs.On("ListExpiryCandidates", ctx, mock.Anything).Return([]models.Job{inProgress}, nil)

	n, err := s.ExpireStaleJobs(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	jobs.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestScheduler_ExpireStaleQuotes(t *testing.T) {
	quotes := new(mockQuoteSweepRepo)
	notifier := new(mockNotifier)
	s := New(testConfig(), nil, quotes, nil, nil, nil, nil, notifier)
	ctx := context.Background()

	providerID := uuid.New()
	quote := models.Quote{
		ID:         uuid.New(),
		JobID:      uuid.New(),
		ProviderID: providerID,
		Status:     models.QuoteStatusExpired,
	}
	quotes.On("ExpireStalePending", ctx, mock.Anything).Return([]models.Quote{quote}, nil)
	notifier.On("CreateNotificationForWS", ctx, providerID, "quote.expired", mock.Anything).Return(nil)

	n, err := s.ExpireStaleQuotes(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	notifier.AssertExpectations(t)
}

func TestScheduler_ExpireStalePayouts(t *testing.T) {
	payouts := new(mockPayoutSweepRepo)
	notifier := new(mockNotifier)
	s := New(testConfig(), nil, nil, payouts, nil, nil, nil, notifier)
	ctx := context.Background()

	providerID := uuid.New()
	payout := models.Payout{
		ID:         uuid.New(),
		ProviderID: providerID,
		Amount:     2500,
		Status:     models.PayoutStatusPending,
	}
	rejected := payout
	rejected.Status = models.PayoutStatusRejected

	payouts.On("ListStalePending", ctx, mock.Anything).Return([]models.Payout{payout}, nil)
	payouts.On("UpdateStatus", ctx, payout.ID, models.PayoutStatusRejected, mock.Anything).Return(&rejected, nil)
	notifier.On("CreateNotificationForWS", ctx, providerID, "payout.expired", mock.Anything).Return(nil)

	n, err := s.ExpireStalePayouts(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	payouts.AssertExpectations(t)
}

func TestScheduler_EscalateStaleDisputes(t *testing.T) {
	disputes := new(mockDisputeSweepRepo)
	users := new(mockAdminLister)
	notifier := new(mockNotifier)
	s := New(testConfig(), nil, nil, nil, disputes, nil, users, notifier)
	ctx := context.Background()

	adminID := uuid.New()
	dispute := models.Dispute{
		ID:     uuid.New(),
		JobID:  uuid.New(),
		Status: models.DisputeStatusOpen,
	}

	disputes.On("ListStaleUnresolved", ctx, mock.Anything).Return([]models.Dispute{dispute}, nil)
	users.On("ListAdmins", ctx).Return([]models.User{{ID: adminID}}, nil)
	disputes.On("MarkInvestigating", ctx, dispute.ID).Return(nil)
	notifier.On("CreateNotificationForWS", ctx, adminID, "dispute.escalated", mock.Anything).Return(nil)

	n, err := s.EscalateStaleDisputes(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	notifier.AssertExpectations(t)
}

func TestScheduler_EscalateStaleDisputes_ReescalatesStuckInvestigation(t *testing.T) {
	disputes := new(mockDisputeSweepRepo)
	users := new(mockAdminLister)
	notifier := new(mockNotifier)
	s := New(testConfig(), nil, nil, nil, disputes, nil, users, notifier)
	ctx := context.Background()

	adminID := uuid.New()
	escalatedAt := time.Now().UTC().Add(-6 * 24 * time.Hour)
	// Спор уже расследуется, но с прошлой эскалации движения не было.
	dispute := models.Dispute{
		ID:          uuid.New(),
		JobID:       uuid.New(),
		Status:      models.DisputeStatusInvestigating,
		EscalatedAt: &escalatedAt,
	}

	disputes.On("ListStaleUnresolved", ctx, mock.Anything).Return([]models.Dispute{dispute}, nil)
	users.On("ListAdmins", ctx).Return([]models.User{{ID: adminID}}, nil)
	disputes.On("MarkInvestigating", ctx, dispute.ID).Return(nil)
	notifier.On("CreateNotificationForWS", ctx, adminID, "dispute.escalated", mock.Anything).Return(nil)

	n, err := s.EscalateStaleDisputes(ctx, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	disputes.AssertNumberOfCalls(t, "MarkInvestigating", 1)
	notifier.AssertExpectations(t)
}
