package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/service"
	appErrors "github.com/campushq/sis-api/pkg/errors"
	"github.com/campushq/sis-api/pkg/response"
)

type sweepRunner interface {
	Run(ctx context.Context, actorID *string) (*service.SweepReport, error)
}

type promotionService interface {
	PromoteClass(ctx context.Context, req service.PromoteClassRequest) ([]service.PromotionOutcome, error)
}

type auditReader interface {
	List(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// AdminHandler exposes operational endpoints: the expiry sweep,
// class promotion and audit trail lookups.
type AdminHandler struct {
	sweep      sweepRunner
	promotions promotionService
	audits     auditReader
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(sweep sweepRunner, promotions promotionService, audits auditReader) *AdminHandler {
	return &AdminHandler{sweep: sweep, promotions: promotions, audits: audits}
}

// RunSweep godoc
// @Summary Restore students whose timed suspensions have lapsed
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/sweeps/expired [post]
func (h *AdminHandler) RunSweep(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	actorID := claims.UserID
	report, err := h.sweep.Run(c.Request.Context(), &actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// PromoteClass godoc
// @Summary Promote or graduate every student in a class
// @Tags Admin
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/promotions [post]
func (h *AdminHandler) PromoteClass(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.PromoteClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid promotion payload"))
		return
	}
	req.ActorID = claims.UserID

	outcomes, err := h.promotions.PromoteClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcomes, nil)
}

// AuditLogs godoc
// @Summary List audit log entries
// @Tags Admin
// @Produce json
// @Param resource query string false "Resource name"
// @Param resource_id query string false "Resource ID"
// @Param limit query int false "Max entries" default(100)
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	entries, err := h.audits.List(c.Request.Context(), c.Query("resource"), c.Query("resource_id"), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
