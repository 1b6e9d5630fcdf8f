package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus описывает статус заявки на вывод средств.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusRejected   PayoutStatus = "rejected"
)

// Payout — запрос исполнителя на вывод заработанных средств.
type Payout struct {
	ID          uuid.UUID    `db:"id" json:"id"`
	ProviderID  uuid.UUID    `db:"provider_id" json:"provider_id"`
	Amount      float64      `db:"amount" json:"amount"`
	CardLast4   *string      `db:"card_last4" json:"card_last4,omitempty"`
	BankName    *string      `db:"bank_name" json:"bank_name,omitempty"`
	Status      PayoutStatus `db:"status" json:"status"`
	Notes       *string      `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
}
