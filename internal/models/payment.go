package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus описывает статус платежа через платёжный шлюз.
type PaymentStatus string

const (
	PaymentStatusAwaitingPayment PaymentStatus = "awaiting_payment"
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusRefunded        PaymentStatus = "refunded"
)

// TransactionStatus описывает статус записи в леджере.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// Payment привязывает checkout-сессию шлюза к заявке.
// SessionID — ключ идемпотентности: по нему сопоставляются вебхуки
// и повторные подтверждения, дубликаты не создают второй платёж.
type Payment struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	JobID             uuid.UUID     `db:"job_id" json:"job_id"`
	ClientID          uuid.UUID     `db:"client_id" json:"client_id"`
	ProviderID        uuid.UUID     `db:"provider_id" json:"provider_id"`
	SessionID         string        `db:"session_id" json:"session_id"`
	ExternalPaymentID *string       `db:"external_payment_id" json:"external_payment_id,omitempty"`
	Amount            float64       `db:"amount" json:"amount"`
	Currency          string        `db:"currency" json:"currency"`
	Status            PaymentStatus `db:"status" json:"status"`
	PaymentMethod     *string       `db:"payment_method" json:"payment_method,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// Transaction — запись леджера об одном движении средств по заявке.
// Создаётся ровно один раз на успешное фондирование эскроу.
type Transaction struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	JobID      uuid.UUID         `db:"job_id" json:"job_id"`
	PayerID    uuid.UUID         `db:"payer_id" json:"payer_id"`
	PayeeID    uuid.UUID         `db:"payee_id" json:"payee_id"`
	Amount     float64           `db:"amount" json:"amount"`
	Commission float64           `db:"commission" json:"commission"`
	NetAmount  float64           `db:"net_amount" json:"net_amount"`
	Status     TransactionStatus `db:"status" json:"status"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}
