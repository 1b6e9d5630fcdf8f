package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository отвечает за записи леджера.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository создаёт экземпляр репозитория.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create создаёт запись леджера о фондировании эскроу.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	var saved models.Transaction
	query := `
		INSERT INTO transactions (job_id, payer_id, payee_id, amount, commission, net_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`
	err := r.db.GetContext(ctx, &saved, query,
		tx.JobID, tx.PayerID, tx.PayeeID, tx.Amount, tx.Commission, tx.NetAmount, tx.Status)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: create %w", err)
	}
	return &saved, nil
}

// GetByJobID возвращает запись леджера по заявке.
func (r *TransactionRepository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction repository: get by job %w", err)
	}
	return &tx, nil
}

// UpdateStatusByJobID переводит запись леджера заявки в новый статус.
func (r *TransactionRepository) UpdateStatusByJobID(ctx context.Context, jobID uuid.UUID, status models.TransactionStatus) (*models.Transaction, error) {
	var saved models.Transaction
	query := `UPDATE transactions SET status = $2, updated_at = NOW() WHERE job_id = $1 RETURNING *`
	if err := r.db.GetContext(ctx, &saved, query, jobID, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction repository: update status %w", err)
	}
	return &saved, nil
}

// ListByUser возвращает историю записей леджера пользователя (как плательщика или получателя).
func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE payer_id = $1 OR payee_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return transactions, err
}
