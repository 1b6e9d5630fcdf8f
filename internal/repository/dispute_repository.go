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

var ErrDisputeNotFound = errors.New("dispute not found")

// DisputeRepository отвечает за хранение споров по заказам.
type DisputeRepository struct {
	db *sqlx.DB
}

// NewDisputeRepository создаёт экземпляр репозитория.
func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create создаёт открытый спор по заказу.
func (r *DisputeRepository) Create(ctx context.Context, jobID, initiatorID uuid.UUID, reason string) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.GetContext(ctx, &dispute, `
		INSERT INTO disputes (job_id, initiator_id, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, jobID, initiatorID, reason, models.DisputeStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: create %w", err)
	}
	return &dispute, nil
}

// GetByID возвращает спор по идентификатору.
func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// GetOpenByJobID возвращает незакрытый спор по заказу, если он есть.
func (r *DisputeRepository) GetOpenByJobID(ctx context.Context, jobID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.GetContext(ctx, &dispute, `
		SELECT * FROM disputes WHERE job_id = $1 AND status <> $2 ORDER BY created_at DESC LIMIT 1
	`, jobID, models.DisputeStatusResolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: get open by job %w", err)
	}
	return &dispute, nil
}

// Resolve закрывает спор с выбранным решением.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, resolution models.DisputeResolution, resolvedBy uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.GetContext(ctx, &dispute, `
		UPDATE disputes
		SET status = $2, resolution = $3, resolved_by = $4, resolved_at = NOW()
		WHERE id = $1 AND status <> $2
		RETURNING *
	`, id, models.DisputeStatusResolved, resolution, resolvedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("dispute repository: resolve %w", err)
	}
	return &dispute, nil
}

// ListStaleUnresolved возвращает споры, требующие эскалации: открытые
// раньше порогового времени либо расследуемые, чья последняя эскалация
// старше порога. Второй предикат даёт повторную эскалацию зависших
// расследований без рассылки админам на каждом проходе.
func (r *DisputeRepository) ListStaleUnresolved(ctx context.Context, cutoff time.Time) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE (status = $1 AND created_at < $3)
		   OR (status = $2 AND escalated_at < $3)
		ORDER BY created_at ASC
	`, models.DisputeStatusOpen, models.DisputeStatusInvestigating, cutoff)
	return disputes, err
}

// MarkInvestigating переводит спор в статус расследования и фиксирует
// время эскалации. Повторный вызов по расследуемому спору обновляет метку.
func (r *DisputeRepository) MarkInvestigating(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = $2, escalated_at = NOW() WHERE id = $1 AND status IN ($2, $3)
	`, id, models.DisputeStatusInvestigating, models.DisputeStatusOpen)
	if err != nil {
		return fmt.Errorf("dispute repository: mark investigating %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("dispute repository: mark investigating %w", err)
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}
	return nil
}
