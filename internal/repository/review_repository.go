package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrReviewNotFound = errors.New("review not found")

// ReviewRepository отвечает за отзывы о выполненных заказах.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository создаёт экземпляр репозитория.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create создаёт отзыв по завершённому заказу.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) (*models.Review, error) {
	var saved models.Review
	err := r.db.GetContext(ctx, &saved, `
		INSERT INTO reviews (job_id, author_id, target_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, review.JobID, review.AuthorID, review.TargetID, review.Rating, review.Comment)
	if err != nil {
		return nil, fmt.Errorf("review repository: create %w", err)
	}
	return &saved, nil
}

// GetByID возвращает отзыв по идентификатору.
func (r *ReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	return common.GetByID[models.Review](ctx, r.db, "reviews", id, ErrReviewNotFound)
}

// ExistsForJob проверяет, оставлял ли автор уже отзыв по заказу.
func (r *ReviewRepository) ExistsForJob(ctx context.Context, jobID, authorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM reviews WHERE job_id = $1 AND author_id = $2)
	`, jobID, authorID)
	if err != nil {
		return false, fmt.Errorf("review repository: exists for job %w", err)
	}
	return exists, nil
}

// ListForUser возвращает отзывы, оставленные о пользователе.
func (r *ReviewRepository) ListForUser(ctx context.Context, targetID uuid.UUID, limit, offset int) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.SelectContext(ctx, &reviews, `
		SELECT * FROM reviews WHERE target_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, targetID, limit, offset)
	return reviews, err
}

// AverageRating возвращает среднюю оценку пользователя.
func (r *ReviewRepository) AverageRating(ctx context.Context, targetID uuid.UUID) (float64, error) {
	var avg float64
	err := r.db.GetContext(ctx, &avg, `
		SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE target_id = $1
	`, targetID)
	if err != nil {
		return 0, fmt.Errorf("review repository: average rating %w", err)
	}
	return avg, nil
}
