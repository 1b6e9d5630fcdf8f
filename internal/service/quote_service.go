package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/lifecycle"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// QuoteRepository описывает взаимодействие сервиса с хранилищем предложений.
type QuoteRepository interface {
	Create(ctx context.Context, quote *models.Quote) (*models.Quote, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Quote, error)
	GetPendingForProvider(ctx context.Context, jobID, providerID uuid.UUID) (*models.Quote, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) (*models.Quote, error)
	RejectOthersForJob(ctx context.Context, jobID, acceptedID uuid.UUID) error
}

// QuoteService содержит бизнес-логику предложений исполнителей.
type QuoteService struct {
	repo          QuoteRepository
	jobs          JobRepository
	notifications NotificationCreator
	hub           WSNotifier
}

// NewQuoteService создаёт новый сервис предложений.
func NewQuoteService(repo QuoteRepository, jobs JobRepository, notifications NotificationCreator) *QuoteService {
	return &QuoteService{
		repo:          repo,
		jobs:          jobs,
		notifications: notifications,
	}
}

// SetHub устанавливает WebSocket hub для отправки уведомлений.
func (s *QuoteService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// SubmitQuoteInput описывает входные данные предложения.
type SubmitQuoteInput struct {
	JobID      uuid.UUID
	ProviderID uuid.UUID
	Amount     float64
	Message    *string
}

// SubmitQuote создаёт предложение исполнителя по открытой заявке.
func (s *QuoteService) SubmitQuote(ctx context.Context, in SubmitQuoteInput) (*models.Quote, error) {
	if in.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "сумма предложения должна быть положительной")
	}

	job, err := s.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	if job.Status != models.JobStatusOpen {
		return nil, apperror.Unprocessable("предложения принимаются только по открытым заявкам")
	}
	if job.ClientID == in.ProviderID {
		return nil, apperror.Forbidden("нельзя отправить предложение на свою заявку")
	}

	if _, err := s.repo.GetPendingForProvider(ctx, in.JobID, in.ProviderID); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "вы уже отправили предложение по этой заявке")
	} else if !errors.Is(err, repository.ErrQuoteNotFound) {
		return nil, err
	}

	quote, err := s.repo.Create(ctx, &models.Quote{
		JobID:      in.JobID,
		ProviderID: in.ProviderID,
		Amount:     in.Amount,
		Message:    in.Message,
		Status:     models.QuoteStatusPending,
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, job.ClientID, "quote.submitted", map[string]interface{}{
		"job_id":   job.ID,
		"quote_id": quote.ID,
		"amount":   quote.Amount,
	})

	return quote, nil
}

// ListQuotes возвращает предложения по заявке. Полный список виден только
// клиенту заявки; исполнитель видит лишь собственные предложения.
func (s *QuoteService) ListQuotes(ctx context.Context, jobID, actorID uuid.UUID) ([]models.Quote, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	quotes, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.ClientID == actorID {
		return quotes, nil
	}

	own := make([]models.Quote, 0, 1)
	for _, q := range quotes {
		if q.ProviderID == actorID {
			own = append(own, q)
		}
	}
	return own, nil
}

// AcceptQuote принимает предложение: заявка закрепляется за исполнителем,
// бюджет фиксируется суммой предложения, остальные предложения отклоняются.
func (s *QuoteService) AcceptQuote(ctx context.Context, quoteID, clientID uuid.UUID) (*models.Job, error) {
	quote, err := s.repo.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, repository.ErrQuoteNotFound) {
			return nil, apperror.NotFound("предложение не найдено")
		}
		return nil, err
	}

	job, err := s.jobs.GetByID(ctx, quote.JobID)
	if err != nil {
		return nil, err
	}

	if job.ClientID != clientID {
		return nil, apperror.Forbidden("принять предложение может только клиент заявки")
	}
	if quote.Status != models.QuoteStatusPending {
		return nil, apperror.Unprocessable("предложение уже обработано")
	}
	if decision := lifecycle.CanTransition(job, models.JobStatusAssigned); !decision.Allowed {
		return nil, apperror.Unprocessable(decision.Reason)
	}

	if _, err := s.repo.UpdateStatus(ctx, quoteID, models.QuoteStatusAccepted); err != nil {
		return nil, err
	}

	job, err = s.jobs.AssignProvider(ctx, job.ID, quote.ProviderID, quote.Amount)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RejectOthersForJob(ctx, job.ID, quoteID); err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).WithField("job_id", job.ID).
				Warn("quote service: не удалось отклонить остальные предложения")
		}
	}

	s.notify(ctx, quote.ProviderID, "quote.accepted", map[string]interface{}{
		"job_id":   job.ID,
		"quote_id": quote.ID,
	})

	return job, nil
}

// RejectQuote отклоняет предложение решением клиента.
func (s *QuoteService) RejectQuote(ctx context.Context, quoteID, clientID uuid.UUID) (*models.Quote, error) {
	quote, err := s.repo.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, repository.ErrQuoteNotFound) {
			return nil, apperror.NotFound("предложение не найдено")
		}
		return nil, err
	}

	job, err := s.jobs.GetByID(ctx, quote.JobID)
	if err != nil {
		return nil, err
	}

	if job.ClientID != clientID {
		return nil, apperror.Forbidden("отклонить предложение может только клиент заявки")
	}
	if quote.Status != models.QuoteStatusPending {
		return nil, apperror.Unprocessable("предложение уже обработано")
	}

	rejected, err := s.repo.UpdateStatus(ctx, quoteID, models.QuoteStatusRejected)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, quote.ProviderID, "quote.rejected", map[string]interface{}{
		"job_id":   job.ID,
		"quote_id": quote.ID,
	})

	return rejected, nil
}

func (s *QuoteService) notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	if s.notifications != nil {
		if err := s.notifications.CreateNotificationForWS(ctx, userID, event, data); err != nil {
			if logger.Log != nil {
				logger.Log.WithError(err).WithField("event", event).
					Warn("quote service: не удалось сохранить уведомление")
			}
		}
	}
	if s.hub != nil {
		_ = s.hub.BroadcastToUser(userID, event, data)
	}
}
