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

var ErrJobNotFound = errors.New("job not found")

// JobRepository отвечает за работу с заявками.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository создаёт экземпляр репозитория.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create создаёт заявку и возвращает её сохранённое состояние.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	var saved models.Job
	query := `
		INSERT INTO jobs (client_id, invited_provider_id, title, description, budget, status, escrow_status, risk_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`
	err := r.db.GetContext(ctx, &saved, query,
		job.ClientID, job.InvitedProviderID, job.Title, job.Description,
		job.Budget, job.Status, job.EscrowStatus, job.RiskScore)
	if err != nil {
		return nil, fmt.Errorf("job repository: create %w", err)
	}
	return &saved, nil
}

// GetByID возвращает заявку по идентификатору.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return common.GetByID[models.Job](ctx, r.db, "jobs", id, ErrJobNotFound)
}

// UpdateStatus переводит заявку в новый статус и возвращает сохранённое состояние.
// Легальность перехода проверяется вызывающей стороной до мутации.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error) {
	var saved models.Job
	query := `UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *`
	if err := r.db.GetContext(ctx, &saved, query, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job repository: update status %w", err)
	}
	return &saved, nil
}

// UpdateEscrowStatus переводит эскроу заявки в новое состояние.
func (r *JobRepository) UpdateEscrowStatus(ctx context.Context, id uuid.UUID, status models.EscrowStatus) (*models.Job, error) {
	var saved models.Job
	query := `UPDATE jobs SET escrow_status = $2, updated_at = NOW() WHERE id = $1 RETURNING *`
	if err := r.db.GetContext(ctx, &saved, query, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job repository: update escrow status %w", err)
	}
	return &saved, nil
}

// AssignProvider закрепляет исполнителя за заявкой по принятому предложению:
// статус становится assigned, бюджет фиксируется суммой предложения.
func (r *JobRepository) AssignProvider(ctx context.Context, id, providerID uuid.UUID, amount float64) (*models.Job, error) {
	var saved models.Job
	query := `
		UPDATE jobs SET provider_id = $2, budget = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`
	if err := r.db.GetContext(ctx, &saved, query, id, providerID, amount, models.JobStatusAssigned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job repository: assign provider %w", err)
	}
	return &saved, nil
}

// ListByClient возвращает заявки клиента.
func (r *JobRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	return jobs, err
}

// ListByProvider возвращает заявки, закреплённые за исполнителем.
func (r *JobRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	return jobs, err
}

// ListPendingValidation возвращает заявки, ожидающие модерации.
func (r *JobRepository) ListPendingValidation(ctx context.Context, limit, offset int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, models.JobStatusPendingValidation, limit, offset)
	return jobs, err
}

// ListExpiryCandidates возвращает открытые заявки старше порога без принятого предложения.
func (r *JobRepository) ListExpiryCandidates(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT j.* FROM jobs j
		WHERE j.status = $1
		  AND j.created_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM quotes q WHERE q.job_id = j.id AND q.status = $3
		  )
		ORDER BY j.created_at ASC
	`, models.JobStatusOpen, cutoff, models.QuoteStatusAccepted)
	return jobs, err
}

// ListStaleFundedCompleted возвращает завершённые заявки, эскроу по которым
// всё ещё зафондирован дольше порога. Кандидаты на принудительную выплату.
func (r *JobRepository) ListStaleFundedCompleted(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		WHERE status = $1 AND escrow_status = $2 AND updated_at < $3
		ORDER BY updated_at ASC
	`, models.JobStatusCompleted, models.EscrowStatusFunded, cutoff)
	return jobs, err
}

// ListUnfundedAssigned возвращает назначенные заявки без фондирования старше порога.
func (r *JobRepository) ListUnfundedAssigned(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		WHERE status = $1 AND escrow_status = $2 AND updated_at < $3
	`, models.JobStatusAssigned, models.EscrowStatusNotFunded, cutoff)
	return jobs, err
}

// ListOpenWithoutQuotes возвращает открытые заявки без откликов старше порога.
func (r *JobRepository) ListOpenWithoutQuotes(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT j.* FROM jobs j
		WHERE j.status = $1
		  AND j.created_at < $2
		  AND NOT EXISTS (SELECT 1 FROM quotes q WHERE q.job_id = j.id)
	`, models.JobStatusOpen, cutoff)
	return jobs, err
}

// ListFundedNotStarted возвращает зафондированные, но не начатые заявки старше порога.
func (r *JobRepository) ListFundedNotStarted(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		WHERE status = $1 AND escrow_status = $2 AND updated_at < $3
	`, models.JobStatusAssigned, models.EscrowStatusFunded, cutoff)
	return jobs, err
}

// ListStaleInProgress возвращает заявки в работе дольше порога.
func (r *JobRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM jobs
		WHERE status = $1 AND updated_at < $2
	`, models.JobStatusInProgress, cutoff)
	return jobs, err
}

// ListReleasedWithoutReview возвращает выплаченные заявки без отзыва клиента старше порога.
func (r *JobRepository) ListReleasedWithoutReview(ctx context.Context, cutoff time.Time) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT j.* FROM jobs j
		WHERE j.escrow_status = $1
		  AND j.updated_at < $2
		  AND NOT EXISTS (SELECT 1 FROM reviews r WHERE r.job_id = j.id)
	`, models.EscrowStatusReleased, cutoff)
	return jobs, err
}
