package dto

// RegisterRequest represents the request to register a new user
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// LoginRequest represents the request to log in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the request to refresh a token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateJobRequest represents the request to create a job
type CreateJobRequest struct {
	Title             string  `json:"title" binding:"required"`
	Description       string  `json:"description" binding:"required"`
	Budget            float64 `json:"budget" binding:"required"`
	InvitedProviderID *string `json:"invited_provider_id"`
}

// RejectJobRequest represents the moderation rejection reason
type RejectJobRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// SubmitQuoteRequest represents the request to submit a quote for a job
type SubmitQuoteRequest struct {
	Amount  float64 `json:"amount" binding:"required"`
	Message *string `json:"message"`
}

// OpenDisputeRequest represents the request to open a dispute
type OpenDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveDisputeRequest represents the admin decision for a dispute
type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

// RequestPayoutRequest represents the request to withdraw funds
type RequestPayoutRequest struct {
	Amount    float64 `json:"amount" binding:"required"`
	CardLast4 string  `json:"card_last4" binding:"required"`
	BankName  string  `json:"bank_name" binding:"required"`
}

// ProcessPayoutRequest represents the admin action on a payout
type ProcessPayoutRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

// CreateReviewRequest represents the request to leave a review
type CreateReviewRequest struct {
	Rating  int     `json:"rating" binding:"required"`
	Comment *string `json:"comment"`
}
