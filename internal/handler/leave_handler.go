package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/service"
	appErrors "github.com/campushq/sis-api/pkg/errors"
	"github.com/campushq/sis-api/pkg/response"
)

type leaveService interface {
	List(ctx context.Context, req service.LeaveListRequest) ([]models.LeaveRequest, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.LeaveRequest, error)
	Submit(ctx context.Context, req service.SubmitLeaveRequest) (*models.LeaveRequest, error)
	Decide(ctx context.Context, id string, req service.DecideLeaveRequest) (*models.LeaveRequest, error)
	Cancel(ctx context.Context, id, actorID string) (*models.LeaveRequest, error)
}

// LeaveHandler exposes leave request endpoints.
type LeaveHandler struct {
	service leaveService
}

// NewLeaveHandler constructs the handler.
func NewLeaveHandler(service leaveService) *LeaveHandler {
	return &LeaveHandler{service: service}
}

// List godoc
// @Summary List leave requests
// @Tags Leave
// @Produce json
// @Param student_id query string false "Student ID"
// @Param status query string false "Approval status"
// @Success 200 {object} response.Envelope
// @Router /leave [get]
func (h *LeaveHandler) List(c *gin.Context) {
	req := service.LeaveListRequest{
		StudentID: c.Query("student_id"),
		Status:    strings.ToUpper(c.Query("status")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 50),
	}
	requests, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get a leave request
// @Tags Leave
// @Produce json
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Router /leave/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Submit godoc
// @Summary File a new leave request
// @Tags Leave
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /leave [post]
func (h *LeaveHandler) Submit(c *gin.Context) {
	var req service.SubmitLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid leave payload"))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Decide godoc
// @Summary Approve or reject a pending leave request
// @Tags Leave
// @Accept json
// @Produce json
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Router /leave/{id}/decision [post]
func (h *LeaveHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DecideLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	req.DecidedBy = claims.UserID

	request, err := h.service.Decide(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Withdraw a pending leave request
// @Tags Leave
// @Produce json
// @Param id path string true "Leave request ID"
// @Success 200 {object} response.Envelope
// @Router /leave/{id}/cancel [post]
func (h *LeaveHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
