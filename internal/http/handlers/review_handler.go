package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// ReviewHandler предоставляет HTTP слой отзывов о выполненных заявках.
type ReviewHandler struct {
	reviews *service.ReviewService
}

// NewReviewHandler создаёт хэндлер.
func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Create обрабатывает POST /jobs/:id/reviews.
func (h *ReviewHandler) Create(c *gin.Context) {
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

	var req dto.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	review, err := h.reviews.CreateReview(c.Request.Context(), service.CreateReviewInput{
		JobID:    jobID,
		AuthorID: userID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

// ListForUser обрабатывает GET /users/:id/reviews.
func (h *ReviewHandler) ListForUser(c *gin.Context) {
	targetID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	reviews, err := h.reviews.ListReviewsForUser(c.Request.Context(), targetID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	average, err := h.reviews.AverageRating(c.Request.Context(), targetID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RatingResponse{
		Average: average,
		Reviews: reviews,
	})
}
