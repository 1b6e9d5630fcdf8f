package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

type mockJobRepo struct {
	mock.Mock
}

func (m *mockJobRepo) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobRepo) AssignProvider(ctx context.Context, id, providerID uuid.UUID, amount float64) (*models.Job, error) {
	args := m.Called(ctx, id, providerID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockJobRepo) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Job, error) {
	args := m.Called(ctx, clientID, limit, offset)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobRepo) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Job, error) {
	args := m.Called(ctx, providerID, limit, offset)
	return args.Get(0).([]models.Job), args.Error(1)
}

func (m *mockJobRepo) ListPendingValidation(ctx context.Context, limit, offset int) ([]models.Job, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Job), args.Error(1)
}

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, jobID, initiatorID uuid.UUID, reason string) (*models.Dispute, error) {
	args := m.Called(ctx, jobID, initiatorID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) GetOpenByJobID(ctx context.Context, jobID uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) Resolve(ctx context.Context, id uuid.UUID, resolution models.DisputeResolution, resolvedBy uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id, resolution, resolvedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

type mockEscrowManager struct {
	mock.Mock
}

func (m *mockEscrowManager) ReleaseEscrow(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockEscrowManager) RefundEscrow(ctx context.Context, jobID uuid.UUID, reason string) (*models.Job, error) {
	args := m.Called(ctx, jobID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

type mockAdminLister struct {
	mock.Mock
}

func (m *mockAdminLister) ListAdmins(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.User), args.Error(1)
}

func newJobServiceForTest(repo *mockJobRepo, disputes *mockDisputeRepo, escrow *mockEscrowManager, users *mockAdminLister, notifier *mockNotificationCreator) *JobService {
	return NewJobService(repo, disputes, escrow, users, notifier)
}

func TestJobService_CreateJob(t *testing.T) {
	repo := new(mockJobRepo)
	users := new(mockAdminLister)
	notifier := new(mockNotificationCreator)
	svc := newJobServiceForTest(repo, nil, nil, users, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	adminID := uuid.New()

	repo.On("Create", ctx, mock.MatchedBy(func(job *models.Job) bool {
		return job.Status == models.JobStatusPendingValidation &&
			job.EscrowStatus == models.EscrowStatusNotFunded &&
			job.RiskScore > 0
	})).Return(&models.Job{
		ID:       uuid.New(),
		ClientID: clientID,
		Status:   models.JobStatusPendingValidation,
	}, nil)
	users.On("ListAdmins", ctx).Return([]models.User{{ID: adminID}}, nil)
	notifier.On("CreateNotificationForWS", ctx, adminID, "job.pending_validation", mock.Anything).Return(nil)

	job, err := svc.CreateJob(ctx, CreateJobInput{
		ClientID:    clientID,
		Title:       "Сборка мебели",
		Description: "Собрать шкаф и две тумбочки по инструкции производителя",
		Budget:      5000,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.JobStatusPendingValidation, job.Status)
}

func TestJobService_CreateJob_Validation(t *testing.T) {
	svc := newJobServiceForTest(new(mockJobRepo), nil, nil, nil, nil)
	ctx := context.Background()
	clientID := uuid.New()

	_, err := svc.CreateJob(ctx, CreateJobInput{ClientID: clientID, Title: "", Description: "x", Budget: 100})
	assert.Error(t, err)

	_, err = svc.CreateJob(ctx, CreateJobInput{ClientID: clientID, Title: "Заголовок", Description: "x", Budget: 0})
	assert.Error(t, err)

	_, err = svc.CreateJob(ctx, CreateJobInput{
		ClientID:          clientID,
		InvitedProviderID: &clientID,
		Title:             "Заголовок",
		Description:       "Описание",
		Budget:            100,
	})
	assert.Error(t, err)
}

func TestJobService_ApproveJob_InvitedProviderAssigned(t *testing.T) {
	repo := new(mockJobRepo)
	notifier := new(mockNotificationCreator)
	svc := newJobServiceForTest(repo, nil, nil, nil, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	invitedID := uuid.New()
	job := &models.Job{
		ID:                uuid.New(),
		ClientID:          clientID,
		InvitedProviderID: &invitedID,
		Budget:            8000,
		Status:            models.JobStatusPendingValidation,
		EscrowStatus:      models.EscrowStatusNotFunded,
	}
	openJob := *job
	openJob.Status = models.JobStatusOpen
	assigned := openJob
	assigned.Status = models.JobStatusAssigned
	assigned.ProviderID = &invitedID

	repo.On("GetByID", ctx, job.ID).Return(job, nil)
	repo.On("UpdateStatus", ctx, job.ID, models.JobStatusOpen).Return(&openJob, nil)
	repo.On("AssignProvider", ctx, job.ID, invitedID, float64(8000)).Return(&assigned, nil)
	notifier.On("CreateNotificationForWS", ctx, invitedID, "job.assigned", mock.Anything).Return(nil)
	notifier.On("CreateNotificationForWS", ctx, clientID, "job.approved", mock.Anything).Return(nil)

	result, err := svc.ApproveJob(ctx, job.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.JobStatusAssigned, result.Status)
	assert.Equal(t, invitedID, *result.ProviderID)
}

func TestJobService_ApproveJob_AlreadyOpen(t *testing.T) {
	repo := new(mockJobRepo)
	svc := newJobServiceForTest(repo, nil, nil, nil, nil)
	ctx := context.Background()

	job := &models.Job{
		ID:     uuid.New(),
		Status: models.JobStatusOpen,
	}
	repo.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.ApproveJob(ctx, job.ID)
	assert.Error(t, err)
	assert.True(t, apperror.IsUnprocessable(err))
}

func TestJobService_StartJob_RequiresFundedEscrow(t *testing.T) {
	repo := new(mockJobRepo)
	svc := newJobServiceForTest(repo, nil, nil, nil, nil)
	ctx := context.Background()

	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		ProviderID:   &providerID,
		Status:       models.JobStatusAssigned,
		EscrowStatus: models.EscrowStatusNotFunded,
	}
	repo.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.StartJob(ctx, job.ID, providerID)
	assert.Error(t, err)
	assert.True(t, apperror.IsUnprocessable(err))
}

func TestJobService_CompleteJob_WrongProvider(t *testing.T) {
	repo := new(mockJobRepo)
	svc := newJobServiceForTest(repo, nil, nil, nil, nil)
	ctx := context.Background()

	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		ProviderID:   &providerID,
		Status:       models.JobStatusInProgress,
		EscrowStatus: models.EscrowStatusFunded,
	}
	repo.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.CompleteJob(ctx, job.ID, uuid.New())
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestJobService_OpenDispute_Duplicate(t *testing.T) {
	repo := new(mockJobRepo)
	disputes := new(mockDisputeRepo)
	svc := newJobServiceForTest(repo, disputes, nil, nil, nil)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     clientID,
		ProviderID:   &providerID,
		Status:       models.JobStatusInProgress,
		EscrowStatus: models.EscrowStatusFunded,
	}
	repo.On("GetByID", ctx, job.ID).Return(job, nil)
	disputes.On("GetOpenByJobID", ctx, job.ID).Return(&models.Dispute{ID: uuid.New()}, nil)

	_, err := svc.OpenDispute(ctx, job.ID, clientID, "работа не выполнена")
	assert.Error(t, err)
}

func TestJobService_OpenDispute_NotParticipant(t *testing.T) {
	repo := new(mockJobRepo)
	svc := newJobServiceForTest(repo, new(mockDisputeRepo), nil, nil, nil)
	ctx := context.Background()

	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		Status:       models.JobStatusInProgress,
		EscrowStatus: models.EscrowStatusFunded,
	}
	repo.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.OpenDispute(ctx, job.ID, uuid.New(), "причина")
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestJobService_ResolveDispute_Refund(t *testing.T) {
	repo := new(mockJobRepo)
	disputes := new(mockDisputeRepo)
	escrow := new(mockEscrowManager)
	notifier := new(mockNotificationCreator)
	svc := newJobServiceForTest(repo, disputes, escrow, nil, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	adminID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     clientID,
		ProviderID:   &providerID,
		Status:       models.JobStatusDisputed,
		EscrowStatus: models.EscrowStatusFunded,
	}
	dispute := &models.Dispute{
		ID:          uuid.New(),
		JobID:       job.ID,
		InitiatorID: clientID,
		Reason:      "работа не выполнена",
		Status:      models.DisputeStatusOpen,
	}
	resolved := *dispute
	resolved.Status = models.DisputeStatusResolved

	disputes.On("GetByID", ctx, dispute.ID).Return(dispute, nil)
	repo.On("GetByID", ctx, job.ID).Return(job, nil)
	escrow.On("RefundEscrow", ctx, job.ID, dispute.Reason).Return(job, nil)
	repo.On("UpdateStatus", ctx, job.ID, models.JobStatusRefunded).Return(job, nil)
	disputes.On("Resolve", ctx, dispute.ID, models.DisputeResolutionRefund, adminID).Return(&resolved, nil)
	notifier.On("CreateNotificationForWS", ctx, mock.Anything, "dispute.resolved", mock.Anything).Return(nil)

	result, err := svc.ResolveDispute(ctx, dispute.ID, adminID, models.DisputeResolutionRefund)
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, result.Status)
	escrow.AssertExpectations(t)
}

func TestJobService_ResolveDispute_ReleaseRequiresFundedEscrow(t *testing.T) {
	repo := new(mockJobRepo)
	disputes := new(mockDisputeRepo)
	escrow := new(mockEscrowManager)
	svc := newJobServiceForTest(repo, disputes, escrow, nil, nil)
	ctx := context.Background()

	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		ProviderID:   &providerID,
		Status:       models.JobStatusDisputed,
		EscrowStatus: models.EscrowStatusNotFunded,
	}
	dispute := &models.Dispute{
		ID:     uuid.New(),
		JobID:  job.ID,
		Status: models.DisputeStatusOpen,
	}

	disputes.On("GetByID", ctx, dispute.ID).Return(dispute, nil)
	repo.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.ResolveDispute(ctx, dispute.ID, uuid.New(), models.DisputeResolutionRelease)
	assert.Error(t, err)
	assert.True(t, apperror.IsUnprocessable(err))
	escrow.AssertNotCalled(t, "ReleaseEscrow", mock.Anything, mock.Anything)
}

func TestJobService_GetJob_NotFound(t *testing.T) {
	repo := new(mockJobRepo)
	svc := newJobServiceForTest(repo, nil, nil, nil, nil)
	ctx := context.Background()
	id := uuid.New()

	repo.On("GetByID", ctx, id).Return(nil, repository.ErrJobNotFound)

	_, err := svc.GetJob(ctx, id)
	assert.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestComputeRiskScore(t *testing.T) {
	low := computeRiskScore(CreateJobInput{
		Title:       "Сборка кухонного гарнитура",
		Description: "Собрать кухонный гарнитур из 12 модулей, навесить фасады, отрегулировать петли",
		Budget:      15000,
	})
	high := computeRiskScore(CreateJobInput{
		Title:       "Работа",
		Description: "Дорого",
		Budget:      900000,
	})

	assert.Less(t, low, high)
	assert.GreaterOrEqual(t, low, 0.0)
	assert.LessOrEqual(t, high, 1.0)
}
