package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/gateway"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// PaymentHandler предоставляет HTTP слой эскроу-платежей: создание
// checkout-сессии, вебхук шлюза, опрос статуса и подтверждение выплаты.
type PaymentHandler struct {
	escrow        *service.EscrowService
	webhookSecret string
	live          bool
}

// NewPaymentHandler создаёт хэндлер.
func NewPaymentHandler(escrow *service.EscrowService, webhookSecret string, live bool) *PaymentHandler {
	return &PaymentHandler{
		escrow:        escrow,
		webhookSecret: webhookSecret,
		live:          live,
	}
}

// Checkout обрабатывает POST /jobs/:id/escrow/checkout.
func (h *PaymentHandler) Checkout(c *gin.Context) {
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

	result, err := h.escrow.InitiateEscrowPayment(c.Request.Context(), jobID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CheckoutResponse{
		Payment:     result.Payment,
		Job:         result.Job,
		CheckoutURL: result.CheckoutURL,
	})
}

// Webhook обрабатывает POST /webhooks/gateway. Тело читается целиком до
// разбора: подпись считается от сырых байтов.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать тело запроса")
		return
	}

	signature := c.GetHeader(gateway.SignatureHeader)
	if err := gateway.VerifyWebhookSignature(h.webhookSecret, signature, rawBody, h.live); err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).Warn("webhook: подпись не прошла проверку")
		}
		common.RespondError(c, http.StatusUnauthorized, "невалидная подпись")
		return
	}

	event, err := gateway.ParseWebhookEvent(rawBody)
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Неизвестные события подтверждаем, чтобы шлюз не ретраил их.
	if event.Type != gateway.EventSessionPaid {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if _, err := h.escrow.ConfirmEscrowFunding(c.Request.Context(), event.Data.SessionID, event.Data.PaymentID, event.Data.PaymentMethod); err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Poll обрабатывает GET /payments/checkout/:sessionId. Используется
// фронтендом после редиректа со страницы оплаты.
func (h *PaymentHandler) Poll(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	sessionID := c.Param("sessionId")
	if sessionID == "" {
		common.RespondBadRequest(c, "параметр sessionId обязателен")
		return
	}

	result, err := h.escrow.PollCheckoutSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PaymentStatusResponse{
		PaymentStatus: string(result.PaymentStatus),
		SessionStatus: result.SessionStatus,
		JobStatus:     string(result.JobStatus),
		EscrowStatus:  string(result.EscrowStatus),
	})
}

// Release обрабатывает POST /jobs/:id/escrow/release. Клиент подтверждает
// выполненную работу и выплачивает средства исполнителю.
func (h *PaymentHandler) Release(c *gin.Context) {
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

	job, err := h.escrow.ConfirmRelease(c.Request.Context(), jobID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
