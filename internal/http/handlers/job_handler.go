package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/dto"
	"github.com/ignatzorin/marketplace-backend/internal/http/handlers/common"
	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

// JobHandler предоставляет HTTP слой жизненного цикла заявок.
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler создаёт хэндлер.
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Create обрабатывает POST /jobs.
func (h *JobHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var invitedID *uuid.UUID
	if req.InvitedProviderID != nil && *req.InvitedProviderID != "" {
		parsed, err := uuid.Parse(*req.InvitedProviderID)
		if err != nil {
			common.RespondBadRequest(c, "неверный invited_provider_id")
			return
		}
		invitedID = &parsed
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), service.CreateJobInput{
		ClientID:          userID,
		InvitedProviderID: invitedID,
		Title:             req.Title,
		Description:       req.Description,
		Budget:            req.Budget,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// Get обрабатывает GET /jobs/:id.
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListMy обрабатывает GET /jobs/my.
func (h *JobHandler) ListMy(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	jobs, err := h.jobs.ListMyJobs(c.Request.Context(), userID, role, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// ListPendingValidation обрабатывает GET /admin/jobs/pending.
func (h *JobHandler) ListPendingValidation(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	jobs, err := h.jobs.ListPendingValidation(c.Request.Context(), limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Approve обрабатывает POST /admin/jobs/:id/approve.
func (h *JobHandler) Approve(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.ApproveJob(c.Request.Context(), jobID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Reject обрабатывает POST /admin/jobs/:id/reject.
func (h *JobHandler) Reject(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.RejectJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.RejectJob(c.Request.Context(), jobID, req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Start обрабатывает POST /jobs/:id/start.
func (h *JobHandler) Start(c *gin.Context) {
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

	job, err := h.jobs.StartJob(c.Request.Context(), jobID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Complete обрабатывает POST /jobs/:id/complete.
func (h *JobHandler) Complete(c *gin.Context) {
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

	job, err := h.jobs.CompleteJob(c.Request.Context(), jobID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// OpenDispute обрабатывает POST /jobs/:id/dispute.
func (h *JobHandler) OpenDispute(c *gin.Context) {
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

	var req dto.OpenDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	dispute, err := h.jobs.OpenDispute(c.Request.Context(), jobID, userID, req.Reason)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dispute)
}

// ResolveDispute обрабатывает POST /admin/disputes/:id/resolve.
func (h *JobHandler) ResolveDispute(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	disputeID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	resolution := models.DisputeResolution(req.Resolution)
	if resolution != models.DisputeResolutionRelease && resolution != models.DisputeResolutionRefund {
		common.RespondBadRequest(c, "resolution должен быть release или refund")
		return
	}

	dispute, err := h.jobs.ResolveDispute(c.Request.Context(), disputeID, adminID, resolution)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}
