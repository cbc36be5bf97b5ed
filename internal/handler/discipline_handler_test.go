package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campushq/sis-api/internal/middleware"
	"github.com/campushq/sis-api/internal/models"
	"github.com/campushq/sis-api/internal/service"
	"github.com/campushq/sis-api/internal/transition"
)

type fakeDisciplineSrv struct {
	created    *service.CreateDisciplineRequest
	createErr  error
	restored   string
	restoreErr error
}

func (f *fakeDisciplineSrv) List(context.Context, service.DisciplineListRequest) ([]models.DisciplinaryAction, *models.Pagination, error) {
	return nil, nil, nil
}

func (f *fakeDisciplineSrv) Get(context.Context, string) (*models.DisciplinaryAction, error) {
	return &models.DisciplinaryAction{ID: "act-1"}, nil
}

func (f *fakeDisciplineSrv) Create(_ context.Context, req service.CreateDisciplineRequest) (*models.DisciplinaryAction, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &req
	return &models.DisciplinaryAction{ID: "act-1", StudentID: req.StudentID}, nil
}

func (f *fakeDisciplineSrv) Delete(context.Context, string, string) error {
	return nil
}

func (f *fakeDisciplineSrv) RestoreStudent(_ context.Context, studentID, _, _ string) (*transition.Result, error) {
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	f.restored = studentID
	return &transition.Result{}, nil
}

func TestDisciplineHandlerCreateRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDisciplineHandler(&fakeDisciplineSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/discipline", bytes.NewBufferString(`{}`))

	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDisciplineHandlerCreateStampsRecorder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeDisciplineSrv{}
	handler := NewDisciplineHandler(srv)

	body, _ := json.Marshal(map[string]interface{}{
		"student_id":  "stu-1",
		"category":    "MAJOR",
		"description": "fighting",
		"action_date": time.Now().UTC().Format(time.RFC3339),
	})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/discipline", bytes.NewBuffer(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-9"})

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	if assert.NotNil(t, srv.created) {
		assert.Equal(t, "stu-1", srv.created.StudentID)
		assert.Equal(t, "user-9", srv.created.RecordedBy)
	}
}

func TestDisciplineHandlerRestorePassesStudentID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeDisciplineSrv{}
	handler := NewDisciplineHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/discipline/students/stu-2/restore", bytes.NewBufferString(`{"note":"appeal granted"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "stu-2"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-9"})

	handler.Restore(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-2", srv.restored)
}
