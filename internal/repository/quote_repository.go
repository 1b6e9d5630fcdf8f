package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrQuoteNotFound = errors.New("quote not found")

// QuoteRepository отвечает за предложения исполнителей.
type QuoteRepository struct {
	db *sqlx.DB
}

// NewQuoteRepository создаёт экземпляр репозитория.
func NewQuoteRepository(db *sqlx.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// Create создаёт предложение.
func (r *QuoteRepository) Create(ctx context.Context, quote *models.Quote) (*models.Quote, error) {
	var saved models.Quote
	query := `
		INSERT INTO quotes (job_id, provider_id, amount, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`
	err := r.db.GetContext(ctx, &saved, query,
		quote.JobID, quote.ProviderID, quote.Amount, quote.Message, quote.Status)
	if err != nil {
		return nil, fmt.Errorf("quote repository: create %w", err)
	}
	return &saved, nil
}

// GetByID возвращает предложение по идентификатору.
func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	return common.GetByID[models.Quote](ctx, r.db, "quotes", id, ErrQuoteNotFound)
}

// ListByJob возвращает все предложения по заявке.
func (r *QuoteRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Quote, error) {
	var quotes []models.Quote
	err := r.db.SelectContext(ctx, &quotes, `
		SELECT * FROM quotes WHERE job_id = $1 ORDER BY created_at ASC
	`, jobID)
	return quotes, err
}

// GetPendingForProvider возвращает ожидающее предложение исполнителя по заявке.
func (r *QuoteRepository) GetPendingForProvider(ctx context.Context, jobID, providerID uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.GetContext(ctx, &quote, `
		SELECT * FROM quotes WHERE job_id = $1 AND provider_id = $2 AND status = $3
	`, jobID, providerID, models.QuoteStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("quote repository: get pending for provider %w", err)
	}
	return &quote, nil
}

// UpdateStatus переводит предложение в новый статус.
func (r *QuoteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.QuoteStatus) (*models.Quote, error) {
	var saved models.Quote
	query := `UPDATE quotes SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *`
	if err := r.db.GetContext(ctx, &saved, query, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("quote repository: update status %w", err)
	}
	return &saved, nil
}

// RejectOthersForJob отклоняет все ожидающие предложения по заявке, кроме принятого.
func (r *QuoteRepository) RejectOthersForJob(ctx context.Context, jobID, acceptedID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE quotes SET status = $3, updated_at = NOW()
		WHERE job_id = $1 AND id <> $2 AND status = $4
	`, jobID, acceptedID, models.QuoteStatusRejected, models.QuoteStatusPending)
	if err != nil {
		return fmt.Errorf("quote repository: reject others %w", err)
	}
	return nil
}

// ExpireStalePending массово устаревает ожидающие предложения старше порога
// и возвращает затронутые строки для уведомления исполнителей.
func (r *QuoteRepository) ExpireStalePending(ctx context.Context, cutoff time.Time) ([]models.Quote, error) {
	var expired []models.Quote
	err := r.db.SelectContext(ctx, &expired, `
		UPDATE quotes SET status = $2, updated_at = NOW()
		WHERE status = $1 AND created_at < $3
		RETURNING *
	`, models.QuoteStatusPending, models.QuoteStatusExpired, cutoff)
	if err != nil {
		return nil, fmt.Errorf("quote repository: expire stale pending %w", err)
	}
	return expired, nil
}
