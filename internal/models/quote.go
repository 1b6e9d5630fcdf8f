package models

import (
	"time"

	"github.com/google/uuid"
)

// QuoteStatus описывает статус предложения исполнителя.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
	QuoteStatusExpired  QuoteStatus = "expired"
)

// Quote представляет предложение исполнителя по заявке.
type Quote struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	JobID      uuid.UUID   `db:"job_id" json:"job_id"`
	ProviderID uuid.UUID   `db:"provider_id" json:"provider_id"`
	Amount     float64     `db:"amount" json:"amount"`
	Message    *string     `db:"message" json:"message,omitempty"`
	Status     QuoteStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}
