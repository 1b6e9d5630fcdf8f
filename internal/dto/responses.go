package dto

import (
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthResponse represents tokens issued together with the user profile
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

// CheckoutResponse represents an initiated escrow payment
type CheckoutResponse struct {
	Payment     *models.Payment `json:"payment"`
	Job         *models.Job     `json:"job"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
}

// PaymentStatusResponse represents the polled state of a checkout session
type PaymentStatusResponse struct {
	PaymentStatus string `json:"payment_status"`
	SessionStatus string `json:"session_status,omitempty"`
	JobStatus     string `json:"job_status"`
	EscrowStatus  string `json:"escrow_status"`
}

// BalanceResponse represents the provider's withdrawable balance
type BalanceResponse struct {
	Available float64 `json:"available"`
}

// RatingResponse represents the aggregate rating of a user
type RatingResponse struct {
	Average float64         `json:"average"`
	Reviews []models.Review `json:"reviews,omitempty"`
}

// UnreadCountResponse represents the number of unread notifications
type UnreadCountResponse struct {
	Count int `json:"count"`
}
