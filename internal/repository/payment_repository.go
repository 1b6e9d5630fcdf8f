package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

var ErrPaymentNotFound = errors.New("payment not found")

// PaymentRepository отвечает за работу с платежами checkout-сессий.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository создаёт экземпляр репозитория.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create сохраняет платёж, привязанный к checkout-сессии.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	var saved models.Payment
	query := `
		INSERT INTO payments (job_id, client_id, provider_id, session_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`
	err := r.db.GetContext(ctx, &saved, query,
		payment.JobID, payment.ClientID, payment.ProviderID,
		payment.SessionID, payment.Amount, payment.Currency, payment.Status)
	if err != nil {
		return nil, fmt.Errorf("payment repository: create %w", err)
	}
	return &saved, nil
}

// GetByID возвращает платёж по идентификатору.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return common.GetByID[models.Payment](ctx, r.db, "payments", id, ErrPaymentNotFound)
}

// GetBySessionID возвращает платёж по ключу checkout-сессии.
func (r *PaymentRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return common.GetByField[models.Payment](ctx, r.db, "payments", "session_id", sessionID, ErrPaymentNotFound)
}

// GetPaidByJobID возвращает оплаченный платёж по заявке.
func (r *PaymentRepository) GetPaidByJobID(ctx context.Context, jobID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT * FROM payments WHERE job_id = $1 AND status = $2
	`, jobID, models.PaymentStatusPaid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: get paid by job %w", err)
	}
	return &payment, nil
}

// MarkPaidBySession выполняет атомарный условный переход платежа в paid.
// Возвращает false, если платёж уже был подтверждён другим вызовом —
// это единственная защита от двойного зачисления при гонке
// вебхука с клиентским опросом и при повторной доставке вебхука.
// Переход разрешён только из awaiting_payment: запоздавший дубликат
// вебхука не должен воскрешать возвращённый платёж.
func (r *PaymentRepository) MarkPaidBySession(ctx context.Context, sessionID, externalPaymentID, paymentMethod string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, external_payment_id = $3, payment_method = $4, updated_at = NOW()
		WHERE session_id = $1 AND status = $5
	`, sessionID, models.PaymentStatusPaid, externalPaymentID, paymentMethod, models.PaymentStatusAwaitingPayment)
	if err != nil {
		return false, fmt.Errorf("payment repository: mark paid %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment repository: mark paid rows affected %w", err)
	}
	return affected == 1, nil
}

// MarkRefunded переводит платёж в статус refunded.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var saved models.Payment
	query := `UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING *`
	if err := r.db.GetContext(ctx, &saved, query, id, models.PaymentStatusRefunded); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment repository: mark refunded %w", err)
	}
	return &saved, nil
}

// ListPaidWithUnfundedJob возвращает оплаченные платежи, заявки которых
// не зафондированы: следы падения между записью платежа и записью заявки.
func (r *PaymentRepository) ListPaidWithUnfundedJob(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.SelectContext(ctx, &payments, `
		SELECT p.* FROM payments p
		JOIN jobs j ON j.id = p.job_id
		WHERE p.status = $1 AND j.escrow_status = $2
	`, models.PaymentStatusPaid, models.EscrowStatusNotFunded)
	return payments, err
}
