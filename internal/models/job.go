package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus описывает статус заявки. Закрытое множество значений,
// легальные переходы определяются в пакете lifecycle.
type JobStatus string

const (
	JobStatusPendingValidation JobStatus = "pending_validation"
	JobStatusOpen              JobStatus = "open"
	JobStatusAssigned          JobStatus = "assigned"
	JobStatusInProgress        JobStatus = "in_progress"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusDisputed          JobStatus = "disputed"
	JobStatusRejected          JobStatus = "rejected"
	JobStatusRefunded          JobStatus = "refunded"
	JobStatusExpired           JobStatus = "expired"
)

// EscrowStatus описывает состояние эскроу по заявке.
type EscrowStatus string

const (
	EscrowStatusNotFunded EscrowStatus = "not_funded"
	EscrowStatusFunded    EscrowStatus = "funded"
	EscrowStatusReleased  EscrowStatus = "released"
	EscrowStatusRefunded  EscrowStatus = "refunded"
)

// ValidJobStatuses список валидных статусов заявок.
var ValidJobStatuses = map[JobStatus]struct{}{
	JobStatusPendingValidation: {},
	JobStatusOpen:              {},
	JobStatusAssigned:          {},
	JobStatusInProgress:        {},
	JobStatusCompleted:         {},
	JobStatusDisputed:          {},
	JobStatusRejected:          {},
	JobStatusRefunded:          {},
	JobStatusExpired:           {},
}

// ValidEscrowStatuses список валидных статусов эскроу.
var ValidEscrowStatuses = map[EscrowStatus]struct{}{
	EscrowStatusNotFunded: {},
	EscrowStatusFunded:    {},
	EscrowStatusReleased:  {},
	EscrowStatusRefunded:  {},
}

// Job описывает заявку клиента на услугу.
// Инвариант: EscrowStatus=funded только для статусов
// assigned, in_progress, completed, disputed; released — только для completed.
type Job struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	ClientID          uuid.UUID    `db:"client_id" json:"client_id"`
	ProviderID        *uuid.UUID   `db:"provider_id" json:"provider_id,omitempty"`
	InvitedProviderID *uuid.UUID   `db:"invited_provider_id" json:"invited_provider_id,omitempty"`
	Title             string       `db:"title" json:"title"`
	Description       string       `db:"description" json:"description"`
	Budget            float64      `db:"budget" json:"budget"`
	Status            JobStatus    `db:"status" json:"status"`
	EscrowStatus      EscrowStatus `db:"escrow_status" json:"escrow_status"`
	RiskScore         float64      `db:"risk_score" json:"risk_score"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}
