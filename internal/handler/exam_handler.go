package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/service"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
	"github.com/campushq/sis-api/pkg/response"
)

type examService interface {
	ListByTerm(ctx context.Context, termID string) ([]models.Examination, error)
	Get(ctx context.Context, id string) (*models.Examination, []models.ExamSchedule, error)
	Create(ctx context.Context, req service.CreateExamRequest) (*models.Examination, error)
	SaveResults(ctx context.Context, scheduleID string, req service.SaveResultsRequest) ([]models.ExamResult, *transition.Result, error)
	ListResults(ctx context.Context, scheduleID string) ([]models.ExamResult, error)
	ClearResults(ctx context.Context, scheduleID, actorID string) error
}

// ExamHandler exposes examination endpoints.
type ExamHandler struct {
	service examService
}

// NewExamHandler constructs the handler.
func NewExamHandler(service examService) *ExamHandler {
	return &ExamHandler{service: service}
}

// List godoc
// @Summary List examinations in a term
// @Tags Exams
// @Produce json
// @Param term_id query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	termID := c.Query("term_id")
	if termID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "term_id is required"))
		return
	}
	exams, err := h.service.ListByTerm(c.Request.Context(), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, nil)
}

// Get godoc
// @Summary Get an examination with its schedules
// @Tags Exams
// @Produce json
// @Param id path string true "Examination ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	exam, schedules, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"examination": exam, "schedules": schedules}, nil)
}

// Create godoc
// @Summary Create an examination with its schedules
// @Tags Exams
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req service.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid examination payload"))
		return
	}
	exam, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// SaveResults godoc
// @Summary Enter marks for a schedule
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /exams/schedules/{id}/results [post]
func (h *ExamHandler) SaveResults(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SaveResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid results payload"))
		return
	}
	req.RecordedBy = claims.UserID

	results, outcome, err := h.service.SaveResults(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"results": results, "transition": outcome}, nil)
}

// ListResults godoc
// @Summary List a schedule's results
// @Tags Exams
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /exams/schedules/{id}/results [get]
func (h *ExamHandler) ListResults(c *gin.Context) {
	results, err := h.service.ListResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// ClearResults godoc
// @Summary Clear a schedule's results, reversing its graded state
// @Tags Exams
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /exams/schedules/{id}/results [delete]
func (h *ExamHandler) ClearResults(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.ClearResults(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
