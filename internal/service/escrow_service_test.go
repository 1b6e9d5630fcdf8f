package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

type mockGatewayClient struct {
	mock.Mock
}

func (m *mockGatewayClient) CreateCheckoutSession(ctx context.Context, in gateway.CreateSessionInput) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *mockGatewayClient) GetCheckoutSession(ctx context.Context, sessionID string) (*gateway.CheckoutSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.CheckoutSession), args.Error(1)
}

func (m *mockGatewayClient) CreateRefund(ctx context.Context, paymentID string, amount float64, reason string) (*gateway.Refund, error) {
	args := m.Called(ctx, paymentID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Refund), args.Error(1)
}

type mockEscrowJobRepo struct {
	mock.Mock
}

func (m *mockEscrowJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockEscrowJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *mockEscrowJobRepo) UpdateEscrowStatus(ctx context.Context, id uuid.UUID, status models.EscrowStatus) (*models.Job, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

type mockEscrowPaymentRepo struct {
	mock.Mock
}

func (m *mockEscrowPaymentRepo) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	args := m.Called(ctx, payment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockEscrowPaymentRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockEscrowPaymentRepo) GetPaidByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockEscrowPaymentRepo) MarkPaidBySession(ctx context.Context, sessionID, externalPaymentID, paymentMethod string) (bool, error) {
	args := m.Called(ctx, sessionID, externalPaymentID, paymentMethod)
	return args.Bool(0), args.Error(1)
}

func (m *mockEscrowPaymentRepo) MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *mockEscrowPaymentRepo) ListPaidWithUnfundedJob(ctx context.Context) ([]models.Payment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Payment), args.Error(1)
}

type mockEscrowTxRepo struct {
	mock.Mock
}

func (m *mockEscrowTxRepo) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockEscrowTxRepo) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockEscrowTxRepo) UpdateStatusByJobID(ctx context.Context, jobID uuid.UUID, status models.TransactionStatus) (*models.Transaction, error) {
	args := m.Called(ctx, jobID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

type mockNotificationCreator struct {
	mock.Mock
}

func (m *mockNotificationCreator) CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	args := m.Called(ctx, userID, event, data)
	return args.Error(0)
}

func newEscrowServiceForTest(jobs *mockEscrowJobRepo, payments *mockEscrowPaymentRepo, txs *mockEscrowTxRepo, notifier *mockNotificationCreator) *EscrowService {
	return NewEscrowService(jobs, payments, txs, nil, notifier,
		"RUB", "http://localhost/success", "http://localhost/cancel")
}

func assignedJob(clientID, providerID uuid.UUID, budget float64) *models.Job {
	return &models.Job{
		ID:           uuid.New(),
		ClientID:     clientID,
		ProviderID:   &providerID,
		Title:        "Ремонт квартиры",
		Budget:       budget,
		Status:       models.JobStatusAssigned,
		EscrowStatus: models.EscrowStatusNotFunded,
	}
}

func TestEscrowService_ConfirmEscrowFunding_CreatesLedgerEntry(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	svc := newEscrowServiceForTest(jobs, payments, txs, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := assignedJob(clientID, providerID, 1000)

	payment := &models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		SessionID:  "cs_123",
		Amount:     1000,
		Status:     models.PaymentStatusAwaitingPayment,
	}

	fundedJob := *job
	fundedJob.EscrowStatus = models.EscrowStatusFunded

	payments.On("GetBySessionID", ctx, "cs_123").Return(payment, nil)
	payments.On("MarkPaidBySession", ctx, "cs_123", "pay_1", "card").Return(true, nil)
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusFunded).Return(&fundedJob, nil)
	txs.On("GetByJobID", ctx, job.ID).Return(nil, repository.ErrTransactionNotFound)
	txs.On("Create", ctx, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.JobID == job.ID &&
			tx.Amount == 1000 &&
			tx.Commission == 100 &&
			tx.NetAmount == 900 &&
			tx.Status == models.TransactionStatusPending
	})).Return(&models.Transaction{ID: uuid.New()}, nil)
	notifier.On("CreateNotificationForWS", ctx, clientID, "escrow.funded", mock.Anything).Return(nil)
	notifier.On("CreateNotificationForWS", ctx, providerID, "escrow.funded", mock.Anything).Return(nil)

	result, err := svc.ConfirmEscrowFunding(ctx, "cs_123", "pay_1", "card")
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, result.EscrowStatus)
	txs.AssertNumberOfCalls(t, "Create", 1)
	notifier.AssertNumberOfCalls(t, "CreateNotificationForWS", 2)
}

func TestEscrowService_ConfirmEscrowFunding_DuplicateIsNoOp(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	svc := newEscrowServiceForTest(jobs, payments, txs, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := assignedJob(clientID, providerID, 1000)
	fundedJob := *job
	fundedJob.EscrowStatus = models.EscrowStatusFunded

	payment := &models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		SessionID:  "cs_dup",
		Amount:     1000,
	}

	payments.On("GetBySessionID", ctx, "cs_dup").Return(payment, nil)
	// Первый вызов выигрывает условный переход, повторный — нет.
	payments.On("MarkPaidBySession", ctx, "cs_dup", "pay_1", "card").Return(true, nil).Once()
	payments.On("MarkPaidBySession", ctx, "cs_dup", "pay_1", "card").Return(false, nil)

	jobs.On("GetByID", ctx, job.ID).Return(job, nil).Once()
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusFunded).Return(&fundedJob, nil)
	jobs.On("GetByID", ctx, job.ID).Return(&fundedJob, nil)
	txs.On("GetByJobID", ctx, job.ID).Return(nil, repository.ErrTransactionNotFound)
	txs.On("Create", ctx, mock.Anything).Return(&models.Transaction{ID: uuid.New()}, nil)
	notifier.On("CreateNotificationForWS", ctx, mock.Anything, "escrow.funded", mock.Anything).Return(nil)

	first, err := svc.ConfirmEscrowFunding(ctx, "cs_dup", "pay_1", "card")
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, first.EscrowStatus)

	second, err := svc.ConfirmEscrowFunding(ctx, "cs_dup", "pay_1", "card")
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, second.EscrowStatus)

	// Запись леджера и уведомления создаются ровно один раз.
	txs.AssertNumberOfCalls(t, "Create", 1)
	notifier.AssertNumberOfCalls(t, "CreateNotificationForWS", 2)
}

func TestEscrowService_ConfirmEscrowFunding_UnknownSessionIsNoOp(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	svc := newEscrowServiceForTest(jobs, payments, txs, nil)
	ctx := context.Background()

	payments.On("GetBySessionID", ctx, "cs_missing").Return(nil, repository.ErrPaymentNotFound)

	// Вебхук по неизвестной сессии подтверждается без побочных эффектов,
	// иначе шлюз будет ретраить доставку бесконечно.
	job, err := svc.ConfirmEscrowFunding(ctx, "cs_missing", "pay_1", "card")
	assert.NoError(t, err)
	assert.Nil(t, job)
	payments.AssertNotCalled(t, "MarkPaidBySession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	txs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEscrowService_InitiateEscrowPayment_SimulatedEndToEnd(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	svc := newEscrowServiceForTest(jobs, payments, txs, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := assignedJob(clientID, providerID, 1500)
	fundedJob := *job
	fundedJob.EscrowStatus = models.EscrowStatusFunded

	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	payments.On("Create", ctx, mock.MatchedBy(func(p *models.Payment) bool {
		return p.JobID == job.ID && p.Amount == 1500 && p.Status == models.PaymentStatusAwaitingPayment
	})).Return(&models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		SessionID:  "sim_session",
		Amount:     1500,
		Status:     models.PaymentStatusAwaitingPayment,
	}, nil)
	payments.On("GetBySessionID", ctx, mock.Anything).Return(&models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		SessionID:  "sim_session",
		Amount:     1500,
	}, nil)
	payments.On("MarkPaidBySession", ctx, mock.Anything, mock.Anything, "simulation").Return(true, nil)
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusFunded).Return(&fundedJob, nil)
	txs.On("GetByJobID", ctx, job.ID).Return(nil, repository.ErrTransactionNotFound)
	txs.On("Create", ctx, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.Amount == 1500 && tx.Commission == 150 && tx.NetAmount == 1350
	})).Return(&models.Transaction{ID: uuid.New()}, nil)
	notifier.On("CreateNotificationForWS", ctx, mock.Anything, "escrow.funded", mock.Anything).Return(nil)

	result, err := svc.InitiateEscrowPayment(ctx, job.ID, clientID)
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusFunded, result.Job.EscrowStatus)
	assert.Equal(t, models.PaymentStatusPaid, result.Payment.Status)
	txs.AssertExpectations(t)
}

func TestEscrowService_InitiateEscrowPayment_WrongClient(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	svc := newEscrowServiceForTest(jobs, payments, txs, nil)
	ctx := context.Background()

	job := assignedJob(uuid.New(), uuid.New(), 1000)
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.InitiateEscrowPayment(ctx, job.ID, uuid.New())
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_InitiateEscrowPayment_NotAssigned(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	svc := newEscrowServiceForTest(jobs, payments, txs, nil)
	ctx := context.Background()

	clientID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     clientID,
		Status:       models.JobStatusOpen,
		EscrowStatus: models.EscrowStatusNotFunded,
		Budget:       1000,
	}
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.InitiateEscrowPayment(ctx, job.ID, clientID)
	assert.Error(t, err)
	assert.True(t, apperror.IsUnprocessable(err))
}

func TestEscrowService_ReleaseEscrow(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	svc := newEscrowServiceForTest(jobs, payments, txs, notifier)
	ctx := context.Background()

	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		ProviderID:   &providerID,
		Status:       models.JobStatusCompleted,
		EscrowStatus: models.EscrowStatusFunded,
	}
	releasedJob := *job
	releasedJob.EscrowStatus = models.EscrowStatusReleased

	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusReleased).Return(&releasedJob, nil)
	txs.On("UpdateStatusByJobID", ctx, job.ID, models.TransactionStatusCompleted).
		Return(&models.Transaction{Status: models.TransactionStatusCompleted}, nil)
	notifier.On("CreateNotificationForWS", ctx, providerID, "escrow.released", mock.Anything).Return(nil)

	result, err := svc.ReleaseEscrow(ctx, job.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusReleased, result.EscrowStatus)
}

func TestEscrowService_ReleaseEscrow_AlreadyReleased(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	svc := newEscrowServiceForTest(jobs, payments, txs, nil)
	ctx := context.Background()

	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		ProviderID:   &providerID,
		Status:       models.JobStatusCompleted,
		EscrowStatus: models.EscrowStatusReleased,
	}
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.ReleaseEscrow(ctx, job.ID)
	assert.Error(t, err)
	assert.True(t, apperror.IsUnprocessable(err))
	txs.AssertNotCalled(t, "UpdateStatusByJobID", mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_RefundEscrow(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	svc := newEscrowServiceForTest(jobs, payments, txs, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     clientID,
		ProviderID:   &providerID,
		Status:       models.JobStatusDisputed,
		EscrowStatus: models.EscrowStatusFunded,
	}
	refundedJob := *job
	refundedJob.EscrowStatus = models.EscrowStatusRefunded

	payment := &models.Payment{
		ID:       uuid.New(),
		JobID:    job.ID,
		ClientID: clientID,
		Amount:   2000,
		Status:   models.PaymentStatusPaid,
	}

	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	payments.On("GetPaidByJobID", ctx, job.ID).Return(payment, nil)
	payments.On("MarkRefunded", ctx, payment.ID).Return(payment, nil)
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusRefunded).Return(&refundedJob, nil)
	txs.On("UpdateStatusByJobID", ctx, job.ID, models.TransactionStatusRefunded).
		Return(&models.Transaction{Status: models.TransactionStatusRefunded}, nil)
	notifier.On("CreateNotificationForWS", ctx, clientID, "escrow.refunded", mock.Anything).Return(nil)

	result, err := svc.RefundEscrow(ctx, job.ID, "спор решён в пользу клиента")
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, result.EscrowStatus)
}

func TestEscrowService_RefundEscrow_NotFunded(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	svc := newEscrowServiceForTest(jobs, payments, txs, nil)
	ctx := context.Background()

	job := &models.Job{
		ID:           uuid.New(),
		ClientID:     uuid.New(),
		Status:       models.JobStatusAssigned,
		EscrowStatus: models.EscrowStatusNotFunded,
	}
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)

	_, err := svc.RefundEscrow(ctx, job.ID, "причина")
	assert.Error(t, err)
	assert.True(t, apperror.IsUnprocessable(err))
}

func TestEscrowService_PollCheckoutSession_ConfirmsWhenWebhookDelayed(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	gw := new(mockGatewayClient)
	svc := NewEscrowService(jobs, payments, txs, gw, notifier,
		"RUB", "http://localhost/success", "http://localhost/cancel")
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := assignedJob(clientID, providerID, 1000)
	fundedJob := *job
	fundedJob.EscrowStatus = models.EscrowStatusFunded

	payment := &models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		SessionID:  "cs_poll",
		Amount:     1000,
		Status:     models.PaymentStatusAwaitingPayment,
	}

	payments.On("GetBySessionID", ctx, "cs_poll").Return(payment, nil)
	jobs.On("GetByID", ctx, job.ID).Return(job, nil).Once()
	gw.On("GetCheckoutSession", ctx, "cs_poll").Return(&gateway.CheckoutSession{
		ID:              "cs_poll",
		ReferenceNumber: "ref_1",
		Status:          gateway.SessionStatusActive,
	}, nil)
	payments.On("MarkPaidBySession", ctx, "cs_poll", "ref_1", "checkout").Return(true, nil)
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusFunded).Return(&fundedJob, nil)
	txs.On("GetByJobID", ctx, job.ID).Return(nil, repository.ErrTransactionNotFound)
	txs.On("Create", ctx, mock.Anything).Return(&models.Transaction{ID: uuid.New()}, nil)
	notifier.On("CreateNotificationForWS", ctx, mock.Anything, "escrow.funded", mock.Anything).Return(nil)

	result, err := svc.PollCheckoutSession(ctx, "cs_poll", clientID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, result.PaymentStatus)
	assert.Equal(t, models.EscrowStatusFunded, result.EscrowStatus)
	txs.AssertNumberOfCalls(t, "Create", 1)
}

func TestEscrowService_PollCheckoutSession_ExpiredSessionLeavesPaymentUntouched(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	gw := new(mockGatewayClient)
	svc := NewEscrowService(jobs, payments, txs, gw, nil,
		"RUB", "http://localhost/success", "http://localhost/cancel")
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := assignedJob(clientID, providerID, 1000)

	payment := &models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		SessionID:  "cs_expired",
		Amount:     1000,
		Status:     models.PaymentStatusAwaitingPayment,
	}

	payments.On("GetBySessionID", ctx, "cs_expired").Return(payment, nil)
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	gw.On("GetCheckoutSession", ctx, "cs_expired").Return(&gateway.CheckoutSession{
		ID:     "cs_expired",
		Status: gateway.SessionStatusExpired,
	}, nil)

	result, err := svc.PollCheckoutSession(ctx, "cs_expired", clientID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusAwaitingPayment, result.PaymentStatus)
	assert.Equal(t, gateway.SessionStatusExpired, result.SessionStatus)
	payments.AssertNotCalled(t, "MarkPaidBySession", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEscrowService_PollCheckoutSession_WrongClient(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	svc := newEscrowServiceForTest(jobs, payments, txs, nil)
	ctx := context.Background()

	payment := &models.Payment{
		ID:       uuid.New(),
		JobID:    uuid.New(),
		ClientID: uuid.New(),
		Amount:   1000,
	}
	payments.On("GetBySessionID", ctx, "cs_foreign").Return(payment, nil)

	_, err := svc.PollCheckoutSession(ctx, "cs_foreign", uuid.New())
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestEscrowService_RepairStuckFunding(t *testing.T) {
	jobs := new(mockEscrowJobRepo)
	payments := new(mockEscrowPaymentRepo)
	txs := new(mockEscrowTxRepo)
	notifier := new(mockNotificationCreator)
	svc := newEscrowServiceForTest(jobs, payments, txs, notifier)
	ctx := context.Background()

	clientID := uuid.New()
	providerID := uuid.New()
	job := assignedJob(clientID, providerID, 3000)
	fundedJob := *job
	fundedJob.EscrowStatus = models.EscrowStatusFunded

	stuck := models.Payment{
		ID:         uuid.New(),
		JobID:      job.ID,
		ClientID:   clientID,
		ProviderID: providerID,
		Amount:     3000,
		Status:     models.PaymentStatusPaid,
	}

	payments.On("ListPaidWithUnfundedJob", ctx).Return([]models.Payment{stuck}, nil)
	jobs.On("GetByID", ctx, job.ID).Return(job, nil)
	jobs.On("UpdateEscrowStatus", ctx, job.ID, models.EscrowStatusFunded).Return(&fundedJob, nil)
	txs.On("GetByJobID", ctx, job.ID).Return(nil, repository.ErrTransactionNotFound)
	txs.On("Create", ctx, mock.MatchedBy(func(tx *models.Transaction) bool {
		return tx.Amount == 3000 && tx.Commission == 300 && tx.NetAmount == 2700
	})).Return(&models.Transaction{ID: uuid.New()}, nil)
	notifier.On("CreateNotificationForWS", ctx, mock.Anything, "escrow.funded", mock.Anything).Return(nil)

	repaired, err := svc.RepairStuckFunding(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, repaired)
}
