package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// QuoteHandler предоставляет HTTP слой откликов исполнителей.
type QuoteHandler struct {
	quotes *service.QuoteService
}

// NewQuoteHandler создаёт хэндлер.
func NewQuoteHandler(quotes *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// Submit обрабатывает POST /jobs/:id/quotes.
func (h *QuoteHandler) Submit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	quote, err := h.quotes.SubmitQuote(c.Request.Context(), service.SubmitQuoteInput{
		JobID:      jobID,
		ProviderID: userID,
		Amount:     req.Amount,
		Message:    req.Message,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quote)
}

// List обрабатывает GET /jobs/:id/quotes.
func (h *QuoteHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	quotes, err := h.quotes.ListQuotes(c.Request.Context(), jobID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

// Accept обрабатывает POST /quotes/:id/accept.
func (h *QuoteHandler) Accept(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	quoteID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.quotes.AcceptQuote(c.Request.Context(), quoteID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Reject обрабатывает POST /quotes/:id/reject.
func (h *QuoteHandler) Reject(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	quoteID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	quote, err := h.quotes.RejectQuote(c.Request.Context(), quoteID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}
