package models

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus описывает статус спора по заявке.
type DisputeStatus string

const (
	DisputeStatusOpen          DisputeStatus = "open"
	DisputeStatusInvestigating DisputeStatus = "investigating"
	DisputeStatusResolved      DisputeStatus = "resolved"
)

// DisputeResolution — решение администратора по спору.
type DisputeResolution string

const (
	DisputeResolutionRelease DisputeResolution = "release"
	DisputeResolutionRefund  DisputeResolution = "refund"
)

// Dispute представляет спор между клиентом и исполнителем.
type Dispute struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	JobID       uuid.UUID          `db:"job_id" json:"job_id"`
	InitiatorID uuid.UUID          `db:"initiator_id" json:"initiator_id"`
	Reason      string             `db:"reason" json:"reason"`
	Status      DisputeStatus      `db:"status" json:"status"`
	Resolution  *DisputeResolution `db:"resolution" json:"resolution,omitempty"`
	ResolvedBy  *uuid.UUID         `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	EscalatedAt *time.Time         `db:"escalated_at" json:"escalated_at,omitempty"`
	ResolvedAt  *time.Time         `db:"resolved_at" json:"resolved_at,omitempty"`
}
