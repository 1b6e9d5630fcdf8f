package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/commission"
	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/lifecycle"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// EscrowJobRepository описывает зависимости оркестратора от хранилища заявок.
type EscrowJobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error)
	UpdateEscrowStatus(ctx context.Context, id uuid.UUID, status models.EscrowStatus) (*models.Job, error)
}

// EscrowPaymentRepository описывает зависимости оркестратора от хранилища платежей.
type EscrowPaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	GetPaidByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error)
	MarkPaidBySession(ctx context.Context, sessionID, externalPaymentID, paymentMethod string) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListPaidWithUnfundedJob(ctx context.Context) ([]models.Payment, error)
}

// EscrowTransactionRepository описывает зависимости оркестратора от леджера.
type EscrowTransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error)
	UpdateStatusByJobID(ctx context.Context, jobID uuid.UUID, status models.TransactionStatus) (*models.Transaction, error)
}

// WSNotifier интерфейс для отправки WebSocket уведомлений.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
	BroadcastStatusUpdate(userID uuid.UUID, entity string, id uuid.UUID, fields map[string]interface{}) error
}

// NotificationCreator описывает минимальный контракт сохранения уведомлений.
type NotificationCreator interface {
	CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// EscrowService — оркестратор платежей и эскроу: инициирует checkout-сессии,
// идемпотентно подтверждает фондирование, выплачивает и возвращает средства.
type EscrowService struct {
	jobs          EscrowJobRepository
	payments      EscrowPaymentRepository
	transactions  EscrowTransactionRepository
	gateway       gateway.Client
	notifications NotificationCreator
	hub           WSNotifier

	currency   string
	successURL string
	cancelURL  string
}

// NewEscrowService создаёт оркестратор. Нулевой gateway переводит сервис
// в режим симуляции: фондирование подтверждается без внешнего вызова.
func NewEscrowService(
	jobs EscrowJobRepository,
	payments EscrowPaymentRepository,
	transactions EscrowTransactionRepository,
	gw gateway.Client,
	notifications NotificationCreator,
	currency, successURL, cancelURL string,
) *EscrowService {
	return &EscrowService{
		jobs:          jobs,
		payments:      payments,
		transactions:  transactions,
		gateway:       gw,
		notifications: notifications,
		currency:      currency,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

// SetHub устанавливает WebSocket hub для отправки уведомлений.
func (s *EscrowService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// InitiateEscrowResult — итог инициирования оплаты.
type InitiateEscrowResult struct {
	Payment     *models.Payment `json:"payment"`
	Job         *models.Job     `json:"job"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
}

// InitiateEscrowPayment создаёт checkout-сессию для фондирования эскроу
// назначенной заявки. В режиме симуляции фондирование подтверждается сразу.
func (s *EscrowService) InitiateEscrowPayment(ctx context.Context, jobID, clientID uuid.UUID) (*InitiateEscrowResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	if job.ClientID != clientID {
		return nil, apperror.Forbidden("оплатить заявку может только её клиент")
	}

	if decision := lifecycle.CanTransitionEscrow(job, models.EscrowStatusFunded); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	if job.ProviderID == nil {
		return nil, apperror.Unprocessable("у заявки нет назначенного исполнителя")
	}

	if s.gateway == nil {
		return s.initiateSimulated(ctx, job)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CreateSessionInput{
		Amount:      job.Budget,
		Currency:    s.currency,
		Description: fmt.Sprintf("Оплата заявки «%s»", job.Title),
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		Metadata:    map[string]string{"job_id": job.ID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("escrow service: не удалось создать checkout-сессию: %w", err)
	}

	payment, err := s.payments.Create(ctx, &models.Payment{
		JobID:      job.ID,
		ClientID:   job.ClientID,
		ProviderID: *job.ProviderID,
		SessionID:  session.ID,
		Amount:     job.Budget,
		Currency:   s.currency,
		Status:     models.PaymentStatusAwaitingPayment,
	})
	if err != nil {
		return nil, err
	}

	return &InitiateEscrowResult{
		Payment:     payment,
		Job:         job,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

// initiateSimulated фондирует эскроу без внешнего шлюза.
func (s *EscrowService) initiateSimulated(ctx context.Context, job *models.Job) (*InitiateEscrowResult, error) {
	sessionID := "sim_" + uuid.NewString()

	payment, err := s.payments.Create(ctx, &models.Payment{
		JobID:      job.ID,
		ClientID:   job.ClientID,
		ProviderID: *job.ProviderID,
		SessionID:  sessionID,
		Amount:     job.Budget,
		Currency:   s.currency,
		Status:     models.PaymentStatusAwaitingPayment,
	})
	if err != nil {
		return nil, err
	}

	fundedJob, err := s.ConfirmEscrowFunding(ctx, sessionID, "sim_pay_"+uuid.NewString(), "simulation")
	if err != nil {
		return nil, err
	}

	payment.Status = models.PaymentStatusPaid

	return &InitiateEscrowResult{
		Payment:     payment,
		Job:         fundedJob,
		CheckoutURL: s.successURL,
	}, nil
}

// ConfirmEscrowFunding идемпотентно подтверждает фондирование эскроу по
// оплаченной checkout-сессии. Конкурирующие подтверждения (вебхук против
// клиентского опроса, повторная доставка вебхука) разрешаются атомарным
// условным переходом платежа: проигравший вызов возвращает текущее
// состояние заявки без побочных эффектов. Сессия без платежа — no-op
// с нулевой заявкой: вебхук по чужой или устаревшей сессии надо
// подтвердить, а не заставлять шлюз ретраить его бесконечно.
func (s *EscrowService) ConfirmEscrowFunding(ctx context.Context, sessionID, externalPaymentID, paymentMethod string) (*models.Job, error) {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			if logger.Log != nil {
				logger.Log.WithField("session_id", sessionID).
					Warn("escrow service: подтверждение по неизвестной сессии, пропускаем")
			}
			return nil, nil
		}
		return nil, err
	}

	won, err := s.payments.MarkPaidBySession(ctx, sessionID, externalPaymentID, paymentMethod)
	if err != nil {
		return nil, err
	}

	if !won {
		// Платёж уже подтверждён другим вызовом.
		return s.jobs.GetByID(ctx, payment.JobID)
	}

	return s.fundJobFromPayment(ctx, payment)
}

// fundJobFromPayment переводит эскроу заявки в funded и создаёт запись
// леджера. Падение между шагами чинит RepairStuckFunding.
func (s *EscrowService) fundJobFromPayment(ctx context.Context, payment *models.Payment) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, payment.JobID)
	if err != nil {
		return nil, err
	}

	if job.EscrowStatus != models.EscrowStatusNotFunded {
		// Эскроу уже зафондирован (например, сверочным sweep'ом).
		return job, nil
	}

	job, err = s.jobs.UpdateEscrowStatus(ctx, job.ID, models.EscrowStatusFunded)
	if err != nil {
		return nil, err
	}

	if _, err := s.transactions.GetByJobID(ctx, job.ID); err != nil {
		if !errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, err
		}

		split := commission.Calculate(payment.Amount)
		_, err = s.transactions.Create(ctx, &models.Transaction{
			JobID:      job.ID,
			PayerID:    payment.ClientID,
			PayeeID:    payment.ProviderID,
			Amount:     split.Gross,
			Commission: split.Commission,
			NetAmount:  split.NetAmount,
			Status:     models.TransactionStatusPending,
		})
		if err != nil {
			return nil, err
		}
	}

	s.notify(ctx, payment.ClientID, "escrow.funded", map[string]interface{}{
		"job_id": job.ID,
		"amount": payment.Amount,
	})
	s.notify(ctx, payment.ProviderID, "escrow.funded", map[string]interface{}{
		"job_id": job.ID,
		"amount": payment.Amount,
	})
	s.broadcastJobStatus(job, payment.ClientID, payment.ProviderID)

	return job, nil
}

// PollResult — ответ на клиентский опрос статуса оплаты.
type PollResult struct {
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	SessionStatus string               `json:"session_status,omitempty"`
	JobStatus     models.JobStatus     `json:"job_status"`
	EscrowStatus  models.EscrowStatus  `json:"escrow_status"`
}

// PollCheckoutSession возвращает статус оплаты для клиентского опроса.
// Активная сессия шлюза при неоплаченном платеже означает, что вебхук
// ещё в пути: источником истины остаётся сохранённый статус платежа.
func (s *EscrowService) PollCheckoutSession(ctx context.Context, sessionID string, clientID uuid.UUID) (*PollResult, error) {
	payment, err := s.payments.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, apperror.NotFound("платёж по указанной сессии не найден")
		}
		return nil, err
	}

	if payment.ClientID != clientID {
		return nil, apperror.Forbidden("сессия принадлежит другому клиенту")
	}

	job, err := s.jobs.GetByID(ctx, payment.JobID)
	if err != nil {
		return nil, err
	}

	result := &PollResult{
		PaymentStatus: payment.Status,
		JobStatus:     job.Status,
		EscrowStatus:  job.EscrowStatus,
	}

	if payment.Status == models.PaymentStatusPaid || s.gateway == nil {
		return result, nil
	}

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).WithField("session_id", sessionID).
				Warn("escrow service: не удалось опросить checkout-сессию")
		}
		return result, nil
	}
	result.SessionStatus = session.Status

	// Клиент опрашивает статус после редиректа со страницы оплаты: если
	// сессия всё ещё активна, вебхук мог не успеть дойти — подтверждаем
	// фондирование из опроса. Атомарный переход платежа в paid гарантирует,
	// что гонка с вебхуком не даст двойного зачисления.
	if session.Status == gateway.SessionStatusActive {
		job, err := s.ConfirmEscrowFunding(ctx, sessionID, session.ReferenceNumber, "checkout")
		if err != nil || job == nil {
			if err != nil && logger.Log != nil {
				logger.Log.WithError(err).WithField("session_id", sessionID).
					Warn("escrow service: не удалось подтвердить фондирование из опроса")
			}
			return result, nil
		}
		result.PaymentStatus = models.PaymentStatusPaid
		result.JobStatus = job.Status
		result.EscrowStatus = job.EscrowStatus
	}

	return result, nil
}

// ConfirmRelease выплачивает средства исполнителю по решению клиента.
func (s *EscrowService) ConfirmRelease(ctx context.Context, jobID, clientID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	if job.ClientID != clientID {
		return nil, apperror.Forbidden("подтвердить выплату может только клиент заявки")
	}

	return s.ReleaseEscrow(ctx, jobID)
}

// ReleaseEscrow переводит эскроу завершённой заявки в released и закрывает
// запись леджера. Повторный вызов по уже выплаченной заявке возвращает
// ошибку нелегального перехода и ничего не меняет.
func (s *EscrowService) ReleaseEscrow(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	if decision := lifecycle.CanTransitionEscrow(job, models.EscrowStatusReleased); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	job, err = s.jobs.UpdateEscrowStatus(ctx, jobID, models.EscrowStatusReleased)
	if err != nil {
		return nil, err
	}

	if _, err := s.transactions.UpdateStatusByJobID(ctx, jobID, models.TransactionStatusCompleted); err != nil {
		return nil, err
	}

	if job.ProviderID != nil {
		s.notify(ctx, *job.ProviderID, "escrow.released", map[string]interface{}{
			"job_id": job.ID,
		})
		s.broadcastJobStatus(job, job.ClientID, *job.ProviderID)
	}

	return job, nil
}

// RefundEscrow возвращает средства клиенту: инициирует возврат в шлюзе,
// помечает платёж и запись леджера возвращёнными, эскроу — refunded.
func (s *EscrowService) RefundEscrow(ctx context.Context, jobID uuid.UUID, reason string) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	if decision := lifecycle.CanTransitionEscrow(job, models.EscrowStatusRefunded); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	payment, err := s.payments.GetPaidByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if s.gateway != nil && payment.ExternalPaymentID != nil {
		if _, err := s.gateway.CreateRefund(ctx, *payment.ExternalPaymentID, payment.Amount, reason); err != nil {
			return nil, fmt.Errorf("escrow service: не удалось инициировать возврат: %w", err)
		}
	}

	if _, err := s.payments.MarkRefunded(ctx, payment.ID); err != nil {
		return nil, err
	}

	job, err = s.jobs.UpdateEscrowStatus(ctx, jobID, models.EscrowStatusRefunded)
	if err != nil {
		return nil, err
	}

	if _, err := s.transactions.UpdateStatusByJobID(ctx, jobID, models.TransactionStatusRefunded); err != nil {
		if !errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, err
		}
	}

	s.notify(ctx, job.ClientID, "escrow.refunded", map[string]interface{}{
		"job_id": job.ID,
		"amount": payment.Amount,
		"reason": reason,
	})
	s.broadcastJobStatus(job, job.ClientID)

	return job, nil
}

// RepairStuckFunding дофондирует заявки, по которым платёж подтверждён,
// а эскроу осталось not_funded после падения между шагами подтверждения.
// Возвращает число починенных заявок.
func (s *EscrowService) RepairStuckFunding(ctx context.Context) (int, error) {
	stuck, err := s.payments.ListPaidWithUnfundedJob(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for i := range stuck {
		if _, err := s.fundJobFromPayment(ctx, &stuck[i]); err != nil {
			if logger.Log != nil {
				logger.Log.WithError(err).WithField("payment_id", stuck[i].ID).
					Error("escrow service: не удалось дофондировать заявку")
			}
			continue
		}
		repaired++
	}

	return repaired, nil
}

// notify сохраняет уведомление и рассылает его по WebSocket.
// Ошибки уведомлений не прерывают основную операцию.
func (s *EscrowService) notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	if s.notifications != nil {
		if err := s.notifications.CreateNotificationForWS(ctx, userID, event, data); err != nil {
			if logger.Log != nil {
				logger.Log.WithError(err).WithField("event", event).
					Warn("escrow service: не удалось сохранить уведомление")
			}
		}
	}
	if s.hub != nil {
		_ = s.hub.BroadcastToUser(userID, event, data)
	}
}

// broadcastJobStatus рассылает участникам актуальный статус заявки и эскроу.
func (s *EscrowService) broadcastJobStatus(job *models.Job, userIDs ...uuid.UUID) {
	if s.hub == nil {
		return
	}
	fields := map[string]interface{}{
		"status":        job.Status,
		"escrow_status": job.EscrowStatus,
	}
	for _, userID := range userIDs {
		_ = s.hub.BroadcastStatusUpdate(userID, "job", job.ID, fields)
	}
}
