package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// ReviewRepository описывает взаимодействие сервиса с хранилищем отзывов.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) (*models.Review, error)
	ExistsForJob(ctx context.Context, jobID, authorID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error)
	AverageRating(ctx context.Context, targetID uuid.UUID) (float64, error)
}

// ReviewService содержит бизнес-логику отзывов о выполненных заявках.
type ReviewService struct {
	repo ReviewRepository
	jobs JobRepository
}

// NewReviewService создаёт новый сервис отзывов.
func NewReviewService(repo ReviewRepository, jobs JobRepository) *ReviewService {
	return &ReviewService{repo: repo, jobs: jobs}
}

// CreateReviewInput описывает входные данные отзыва.
type CreateReviewInput struct {
	JobID    uuid.UUID
	AuthorID uuid.UUID
	Rating   int
	Comment  *string
}

// CreateReview создаёт отзыв клиента о выполненной заявке.
// Отзыв возможен только после выплаты средств и только один раз.
func (s *ReviewService) CreateReview(ctx context.Context, in CreateReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "оценка должна быть от 1 до 5")
	}
	if in.Comment != nil && len(strings.TrimSpace(*in.Comment)) > 2000 {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "комментарий слишком длинный")
	}

	job, err := s.jobs.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, apperror.NotFound("заявка не найдена")
		}
		return nil, err
	}

	if job.ClientID != in.AuthorID {
		return nil, apperror.Forbidden("отзыв может оставить только клиент заявки")
	}
	if job.Status != models.JobStatusCompleted || job.EscrowStatus != models.EscrowStatusReleased {
		return nil, apperror.Unprocessable("отзыв возможен только после завершения заявки и выплаты средств")
	}
	if job.ProviderID == nil {
		return nil, apperror.Unprocessable("у заявки нет исполнителя")
	}

	exists, err := s.repo.ExistsForJob(ctx, in.JobID, in.AuthorID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.New(apperror.ErrCodeConflict, "отзыв по этой заявке уже оставлен")
	}

	return s.repo.Create(ctx, &models.Review{
		JobID:    in.JobID,
		AuthorID: in.AuthorID,
		TargetID: *job.ProviderID,
		Rating:   in.Rating,
		Comment:  in.Comment,
	})
}

// ListReviewsForUser возвращает отзывы о пользователе.
func (s *ReviewService) ListReviewsForUser(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListForUser(ctx, targetID, limit, offset)
}

// AverageRating возвращает среднюю оценку пользователя.
func (s *ReviewService) AverageRating(ctx context.Context, targetID uuid.UUID) (float64, error) {
	return s.repo.AverageRating(ctx, targetID)
}
