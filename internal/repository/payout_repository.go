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

var (
	ErrPayoutNotFound    = errors.New("payout not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// PayoutRepository отвечает за заявки на вывод средств.
type PayoutRepository struct {
	db *sqlx.DB
}

// NewPayoutRepository создаёт экземпляр репозитория.
func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// AvailableBalance считает доступный исполнителю остаток: сумма чистых
// выплат по завершённым записям леджера минус уже запрошенные выводы.
func (r *PayoutRepository) AvailableBalance(ctx context.Context, providerID uuid.UUID) (float64, error) {
	var balance float64
	err := r.db.GetContext(ctx, &balance, `
		SELECT COALESCE((
			SELECT SUM(net_amount) FROM transactions
			WHERE payee_id = $1 AND status = $2
		), 0) - COALESCE((
			SELECT SUM(amount) FROM payouts
			WHERE provider_id = $1 AND status <> $3
		), 0)
	`, providerID, models.TransactionStatusCompleted, models.PayoutStatusRejected)
	if err != nil {
		return 0, fmt.Errorf("payout repository: available balance %w", err)
	}
	return balance, nil
}

// Create создаёт заявку на вывод, проверяя доступный остаток.
func (r *PayoutRepository) Create(ctx context.Context, providerID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Payout, error) {
	balance, err := r.AvailableBalance(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	var payout models.Payout
	err = r.db.GetContext(ctx, &payout, `
		INSERT INTO payouts (provider_id, amount, card_last4, bank_name, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, providerID, amount, cardLast4, bankName, models.PayoutStatusPending)
	if err != nil {
		return nil, fmt.Errorf("payout repository: create %w", err)
	}
	return &payout, nil
}

// GetByID возвращает заявку на вывод по идентификатору.
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return common.GetByID[models.Payout](ctx, r.db, "payouts", id, ErrPayoutNotFound)
}

// ListByProvider возвращает заявки на вывод исполнителя.
func (r *PayoutRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.SelectContext(ctx, &payouts, `
		SELECT * FROM payouts WHERE provider_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	return payouts, err
}

// UpdateStatus переводит заявку на вывод в новый статус с пояснением.
func (r *PayoutRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.PayoutStatus, notes *string) (*models.Payout, error) {
	var saved models.Payout
	now := time.Now()
	query := `
		UPDATE payouts SET status = $2, notes = $3, processed_at = $4 WHERE id = $1 RETURNING *
	`
	if err := r.db.GetContext(ctx, &saved, query, id, status, notes, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, fmt.Errorf("payout repository: update status %w", err)
	}
	return &saved, nil
}

// ListStalePending возвращает заявки на вывод, ожидающие дольше порога.
func (r *PayoutRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.SelectContext(ctx, &payouts, `
		SELECT * FROM payouts WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC
	`, models.PayoutStatusPending, cutoff)
	return payouts, err
}
