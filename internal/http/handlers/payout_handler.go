package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// PayoutHandler предоставляет HTTP слой вывода средств исполнителями.
type PayoutHandler struct {
	payouts *service.PayoutService
}

// NewPayoutHandler создаёт хэндлер.
func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// Request обрабатывает POST /payouts.
func (h *PayoutHandler) Request(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.RequestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payout, err := h.payouts.RequestPayout(c.Request.Context(), userID, req.Amount, req.CardLast4, req.BankName)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payout)
}

// Get обрабатывает GET /payouts/:id.
func (h *PayoutHandler) Get(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	payout, err := h.payouts.GetPayout(c.Request.Context(), id, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

// ListMy обрабатывает GET /payouts.
func (h *PayoutHandler) ListMy(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	payouts, err := h.payouts.ListMyPayouts(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// Balance обрабатывает GET /payouts/balance.
func (h *PayoutHandler) Balance(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	available, err := h.payouts.AvailableBalance(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{Available: available})
}

// Process обрабатывает POST /admin/payouts/:id/process.
func (h *PayoutHandler) Process(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ProcessPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	status := models.PayoutStatus(req.Status)
	switch status {
	case models.PayoutStatusProcessing, models.PayoutStatusCompleted, models.PayoutStatusRejected:
	default:
		common.RespondBadRequest(c, "status должен быть processing, completed или rejected")
		return
	}

	payout, err := h.payouts.ProcessPayout(c.Request.Context(), id, status, req.Notes)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}
