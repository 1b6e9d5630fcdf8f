package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/lifecycle"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// JobRepository описывает взаимодействие сервиса с хранилищем заявок.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) (*models.Job, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error)
	AssignProvider(ctx context.Context, id, providerID uuid.UUID, amount float64) (*models.Job, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Job, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Job, error)
	ListPendingValidation(ctx context.Context, limit, offset int) ([]models.Job, error)
}

// DisputeRepository описывает взаимодействие сервиса с хранилищем споров.
type DisputeRepository interface {
	Create(ctx context.Context, jobID, initiatorID uuid.UUID, reason string) (*models.Dispute, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByJobID(ctx context.Context, jobID uuid.UUID) (*models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution models.DisputeResolution, resolvedBy uuid.UUID) (*models.Dispute, error)
}

// EscrowManager описывает операции эскроу, нужные при разрешении споров.
type EscrowManager interface {
	ReleaseEscrow(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	RefundEscrow(ctx context.Context, jobID uuid.UUID, reason string) (*models.Job, error)
}

// AdminLister возвращает администраторов для уведомлений о модерации.
type AdminLister interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// JobService содержит бизнес-логику жизненного цикла заявок.
type JobService struct {
	repo          JobRepository
	disputes      DisputeRepository
	escrow        EscrowManager
	users         AdminLister
	notifications NotificationCreator
	hub           WSNotifier
}

// NewJobService создаёт новый сервис заявок.
func NewJobService(repo JobRepository, disputes DisputeRepository, escrow EscrowManager, users AdminLister, notifications NotificationCreator) *JobService {
	return &JobService{
		repo:          repo,
		disputes:      disputes,
		escrow:        escrow,
		users:         users,
		notifications: notifications,
	}
}

// SetHub устанавливает WebSocket hub для отправки уведомлений.
func (s *JobService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// CreateJobInput описывает входные данные новой заявки.
type CreateJobInput struct {
	ClientID          uuid.UUID
	InvitedProviderID *uuid.UUID
	Title             string
	Description       string
	Budget            float64
}

// CreateJob создаёт заявку в статусе pending_validation и уведомляет
// администраторов о необходимости модерации.
func (s *JobService) CreateJob(ctx context.Context, in CreateJobInput) (*models.Job, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "заголовок заявки не может быть пустым")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "описание заявки не может быть пустым")
	}
	if in.Budget <= 0 {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "бюджет должен быть положительным")
	}
	if in.InvitedProviderID != nil && *in.InvitedProviderID == in.ClientID {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "нельзя пригласить самого себя исполнителем")
	}

	job, err := s.repo.Create(ctx, &models.Job{
		ClientID:          in.ClientID,
		InvitedProviderID: in.InvitedProviderID,
		Title:             in.Title,
		Description:       in.Description,
		Budget:            in.Budget,
		Status:            models.JobStatusPendingValidation,
		EscrowStatus:      models.EscrowStatusNotFunded,
		RiskScore:         computeRiskScore(in),
	})
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, "job.pending_validation", map[string]interface{}{
		"job_id":     job.ID,
		"risk_score": job.RiskScore,
	})

	return job, nil
}

// computeRiskScore считает эвристическую оценку риска заявки для модерации.
// Высокий бюджет и скудное описание повышают оценку.
func computeRiskScore(in CreateJobInput) float64 {
	score := 0.1

	if len(strings.TrimSpace(in.Description)) < 50 {
		score += 0.3
	}
	if len(strings.TrimSpace(in.Title)) < 10 {
		score += 0.1
	}

	switch {
	case in.Budget > 500000:
		score += 0.4
	case in.Budget > 100000:
		score += 0.2
	}

	if in.InvitedProviderID != nil {
		score -= 0.1
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// GetJob возвращает заявку по идентификатору.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}
	return job, nil
}

// ListMyJobs возвращает заявки пользователя в зависимости от его роли.
func (s *JobService) ListMyJobs(ctx context.Context, userID uuid.UUID, role string, limit, offset int) ([]models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	if role == models.RoleProvider {
		return s.repo.ListByProvider(ctx, userID, limit, offset)
	}
	return s.repo.ListByClient(ctx, userID, limit, offset)
}

// ListPendingValidation возвращает заявки, ожидающие модерации.
func (s *JobService) ListPendingValidation(ctx context.Context, limit, offset int) ([]models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListPendingValidation(ctx, limit, offset)
}

// ApproveJob публикует заявку после модерации. Если клиент пригласил
// конкретного исполнителя, заявка сразу закрепляется за ним.
func (s *JobService) ApproveJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if decision := lifecycle.CanTransition(job, models.JobStatusOpen); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	job, err = s.repo.UpdateStatus(ctx, jobID, models.JobStatusOpen)
	if err != nil {
		return nil, err
	}

	if job.InvitedProviderID != nil {
		job, err = s.repo.AssignProvider(ctx, jobID, *job.InvitedProviderID, job.Budget)
		if err != nil {
			return nil, err
		}
		s.notify(ctx, *job.ProviderID, "job.assigned", map[string]interface{}{
			"job_id": job.ID,
		})
	}

	s.notify(ctx, job.ClientID, "job.approved", map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})

	return job, nil
}

// RejectJob отклоняет заявку на модерации.
func (s *JobService) RejectJob(ctx context.Context, jobID uuid.UUID, reason string) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if decision := lifecycle.CanTransition(job, models.JobStatusRejected); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	job, err = s.repo.UpdateStatus(ctx, jobID, models.JobStatusRejected)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, job.ClientID, "job.rejected", map[string]interface{}{
		"job_id": job.ID,
		"reason": reason,
	})

	return job, nil
}

// StartJob переводит заявку в работу. Работа начинается только после
// фондирования эскроу.
func (s *JobService) StartJob(ctx context.Context, jobID, providerID uuid.UUID) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.ProviderID == nil || *job.ProviderID != providerID {
		return nil, apperror.Forbidden("начать работу может только назначенный исполнитель")
	}

	if job.EscrowStatus != models.EscrowStatusFunded {
		return nil, apperror.Unprocessable("работа начинается только после фондирования эскроу")
	}

	if decision := lifecycle.CanTransition(job, models.JobStatusInProgress); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	job, err = s.repo.UpdateStatus(ctx, jobID, models.JobStatusInProgress)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, job.ClientID, "job.started", map[string]interface{}{
		"job_id": job.ID,
	})

	return job, nil
}

// CompleteJob отмечает заявку выполненной. Переход требует
// зафондированного эскроу; средства выплачиваются отдельным шагом.
func (s *JobService) CompleteJob(ctx context.Context, jobID, providerID uuid.UUID) (*models.Job, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.ProviderID == nil || *job.ProviderID != providerID {
		return nil, apperror.Forbidden("завершить заявку может только назначенный исполнитель")
	}

	if decision := lifecycle.CanTransition(job, models.JobStatusCompleted); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	job, err = s.repo.UpdateStatus(ctx, jobID, models.JobStatusCompleted)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, job.ClientID, "job.completed", map[string]interface{}{
		"job_id": job.ID,
	})

	return job, nil
}

// OpenDispute открывает спор по заявке от имени одного из участников.
func (s *JobService) OpenDispute(ctx context.Context, jobID, initiatorID uuid.UUID, reason string) (*models.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "причина спора не может быть пустой")
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	isParticipant := job.ClientID == initiatorID ||
		(job.ProviderID != nil && *job.ProviderID == initiatorID)
	if !isParticipant {
		return nil, apperror.Forbidden("спор может открыть только участник заявки")
	}

	if decision := lifecycle.CanTransition(job, models.JobStatusDisputed); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	if _, err := s.disputes.GetOpenByJobID(ctx, jobID); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по заявке уже открыт спор")
	} else if !errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, err
	}

	dispute, err := s.disputes.Create(ctx, jobID, initiatorID, reason)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.UpdateStatus(ctx, jobID, models.JobStatusDisputed); err != nil {
		return nil, err
	}

	// Уведомляем вторую сторону и администраторов.
	other := job.ClientID
	if initiatorID == job.ClientID && job.ProviderID != nil {
		other = *job.ProviderID
	}
	s.notify(ctx, other, "dispute.opened", map[string]interface{}{
		"job_id":     jobID,
		"dispute_id": dispute.ID,
	})
	s.notifyAdmins(ctx, "dispute.opened", map[string]interface{}{
		"job_id":     jobID,
		"dispute_id": dispute.ID,
	})

	return dispute, nil
}

// ResolveDispute закрывает спор решением администратора: release выплачивает
// средства исполнителю, refund возвращает их клиенту.
func (s *JobService) ResolveDispute(ctx context.Context, disputeID, adminID uuid.UUID, resolution models.DisputeResolution) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.NotFound("спор не найден")
		}
		return nil, err
	}

	if dispute.Status == models.DisputeStatusResolved {
		return nil, apperror.New(apperror.ErrCodeConflict, "спор уже разрешён")
	}

	job, err := s.GetJob(ctx, dispute.JobID)
	if err != nil {
		return nil, err
	}

	switch resolution {
	case models.DisputeResolutionRelease:
		if decision := lifecycle.CanTransition(job, models.JobStatusCompleted); !decision.Allowed {
			return nil, apperror.Unprocessable(decision.Reason)
		}
		if _, err := s.repo.UpdateStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
			return nil, err
		}
		if _, err := s.escrow.ReleaseEscrow(ctx, job.ID); err != nil {
			return nil, err
		}

	case models.DisputeResolutionRefund:
		if decision := lifecycle.CanTransition(job, models.JobStatusRefunded); !decision.Allowed {
			return nil, apperror.Unprocessable(decision.Reason)
		}
		if _, err := s.escrow.RefundEscrow(ctx, job.ID, dispute.Reason); err != nil {
			return nil, err
		}
		if _, err := s.repo.UpdateStatus(ctx, job.ID, models.JobStatusRefunded); err != nil {
			return nil, err
		}

	default:
		return nil, apperror.New(apperror.ErrCodeBadRequest, "неизвестное решение по спору")
	}

	resolved, err := s.disputes.Resolve(ctx, disputeID, resolution, adminID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, job.ClientID, "dispute.resolved", map[string]interface{}{
		"dispute_id": resolved.ID,
		"resolution": resolution,
	})
	if job.ProviderID != nil {
		s.notify(ctx, *job.ProviderID, "dispute.resolved", map[string]interface{}{
			"dispute_id": resolved.ID,
			"resolution": resolution,
		})
	}

	return resolved, nil
}

func (s *JobService) notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	if s.notifications != nil {
		if err := s.notifications.CreateNotificationForWS(ctx, userID, event, data); err != nil {
			if logger.Log != nil {
				logger.Log.WithError(err).WithField("event", event).
					Warn("job service: не удалось сохранить уведомление")
			}
		}
	}
	if s.hub != nil {
		_ = s.hub.BroadcastToUser(userID, event, data)
	}
}

func (s *JobService) notifyAdmins(ctx context.Context, event string, data interface{}) {
	if s.users == nil {
		return
	}
	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).Warn("job service: не удалось получить администраторов")
		}
		return
	}
	for _, admin := range admins {
		s.notify(ctx, admin.ID, event, data)
	}
}
