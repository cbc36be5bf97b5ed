package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/service"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
	"github.com/campushq/sis-api/pkg/response"
)

type disciplineService interface {
	List(ctx context.Context, req service.DisciplineListRequest) ([]models.DisciplinaryAction, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.DisciplinaryAction, error)
	Create(ctx context.Context, req service.CreateDisciplineRequest) (*models.DisciplinaryAction, error)
	Delete(ctx context.Context, id, actorID string) error
	RestoreStudent(ctx context.Context, studentID, actorID, note string) (*transition.Result, error)
}

// DisciplineHandler exposes disciplinary action endpoints.
type DisciplineHandler struct {
	service disciplineService
}

// NewDisciplineHandler constructs the handler.
func NewDisciplineHandler(service disciplineService) *DisciplineHandler {
	return &DisciplineHandler{service: service}
}

// List godoc
// @Summary List disciplinary actions
// @Tags Discipline
// @Produce json
// @Param student_id query string false "Student ID"
// @Param category query string false "Category"
// @Param only_status query bool false "Only status-affecting actions"
// @Success 200 {object} response.Envelope
// @Router /discipline [get]
func (h *DisciplineHandler) List(c *gin.Context) {
	req := service.DisciplineListRequest{
		StudentID:  c.Query("student_id"),
		Category:   strings.ToUpper(c.Query("category")),
		OnlyStatus: c.Query("only_status") == "true",
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 50),
	}
	if from, err := time.Parse(time.RFC3339, c.Query("date_from")); err == nil {
		req.DateFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("date_to")); err == nil {
		req.DateTo = &to
	}
	actions, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, pagination)
}

// Get godoc
// @Summary Get a disciplinary action
// @Tags Discipline
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} response.Envelope
// @Router /discipline/{id} [get]
func (h *DisciplineHandler) Get(c *gin.Context) {
	action, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, action, nil)
}

// Create godoc
// @Summary Record a disciplinary action
// @Tags Discipline
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /discipline [post]
func (h *DisciplineHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateDisciplineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid disciplinary payload"))
		return
	}
	req.RecordedBy = claims.UserID

	action, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, action)
}

// Delete godoc
// @Summary Delete a disciplinary action, reversing its status effects
// @Tags Discipline
// @Param id path string true "Action ID"
// @Success 204
// @Router /discipline/{id} [delete]
func (h *DisciplineHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type restoreRequest struct {
	Note string `json:"note"`
}

// Restore godoc
// @Summary Lift a suspension manually
// @Tags Discipline
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /discipline/students/{id}/restore [post]
func (h *DisciplineHandler) Restore(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req restoreRequest
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.RestoreStudent(c.Request.Context(), c.Param("id"), claims.UserID, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
