package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/service"
	"github.com/campushq/sis-api/internal/transition"
	appErrors "github.com/campushq/sis-api/pkg/errors"
	"github.com/campushq/sis-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, req service.StudentListRequest) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error)
	History(ctx context.Context, id string, limit int) ([]transition.Record, error)
	Summary(ctx context.Context, id string) (*models.StatusSummary, error)
}

type exportService interface {
	StudentHistory(ctx context.Context, studentID, format string) (*service.ExportFile, error)
}

// StudentHandler exposes roster and status endpoints.
type StudentHandler struct {
	service studentService
	exports exportService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(service studentService, exports exportService) *StudentHandler {
	return &StudentHandler{service: service, exports: exports}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param class query string false "Class name"
// @Param grade query int false "Grade level"
// @Param status query string false "Lifecycle status"
// @Param search query string false "Name or NIS search"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	req := service.StudentListRequest{
		ClassName: c.Query("class"),
		Status:    strings.ToUpper(c.Query("status")),
		Search:    c.Query("search"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 50),
	}
	if raw := c.Query("grade"); raw != "" {
		if grade, err := strconv.Atoi(raw); err == nil {
			req.GradeLevel = &grade
		}
	}
	students, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Enrol a new student
// @Tags Students
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student payload"))
		return
	}
	student, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update roster fields
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid student payload"))
		return
	}
	student, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// History godoc
// @Summary Student status transition history
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param limit query int false "Max records"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/status-history [get]
func (h *StudentHandler) History(c *gin.Context) {
	records, err := h.service.History(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Cached student status summary
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/status-summary [get]
func (h *StudentHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ExportHistory godoc
// @Summary Download status history as csv, pdf or xlsx
// @Tags Students
// @Produce octet-stream
// @Param id path string true "Student ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200
// @Router /students/{id}/status-history/export [get]
func (h *StudentHandler) ExportHistory(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	file, err := h.exports.StudentHistory(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
