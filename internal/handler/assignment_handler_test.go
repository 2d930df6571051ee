package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/middleware"
	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/service"
)

type assignmentRepoStub struct {
	created     *models.Assignment
	assignments []models.Assignment
}

func (m *assignmentRepoStub) Create(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = "a1"
	}
	m.created = a
	return nil
}

func (m *assignmentRepoStub) List(ctx context.Context) ([]models.Assignment, error) {
	return m.assignments, nil
}

func (m *assignmentRepoStub) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	for i := range m.assignments {
		if m.assignments[i].ID == id {
			return &m.assignments[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type publisherStub struct {
	assignments int
	submissions int
}

func (m *publisherStub) PublishAssignments(ctx context.Context) { m.assignments++ }
func (m *publisherStub) PublishSubmissions(ctx context.Context) { m.submissions++ }

func TestAssignmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &assignmentRepoStub{}
	events := &publisherStub{}
	handler := NewAssignmentHandler(service.NewAssignmentService(repo, events, nil, zap.NewNop()))

	payload, _ := json.Marshal(models.CreateAssignmentRequest{
		Title:     "Essay",
		DueDate:   time.Now().Add(48 * time.Hour),
		MaxPoints: 100,
	})
	c, w := newGinContext(http.MethodPost, "/assignments", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Email: "teacher@example.com", Role: models.RoleTeacher})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, "t1", repo.created.CreatedBy)
	assert.Equal(t, 1, events.assignments)
}

func TestAssignmentHandlerCreateInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAssignmentHandler(service.NewAssignmentService(&assignmentRepoStub{}, &publisherStub{}, nil, zap.NewNop()))

	c, w := newGinContext(http.MethodPost, "/assignments", []byte(`{"title":""}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignmentHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &assignmentRepoStub{assignments: []models.Assignment{{ID: "a1", Title: "Essay"}}}
	handler := NewAssignmentHandler(service.NewAssignmentService(repo, &publisherStub{}, nil, zap.NewNop()))

	c, w := newGinContext(http.MethodGet, "/assignments", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Essay")
}

func TestAssignmentHandlerGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &assignmentRepoStub{assignments: []models.Assignment{{ID: "a1", Title: "Essay"}}}
	handler := NewAssignmentHandler(service.NewAssignmentService(repo, &publisherStub{}, nil, zap.NewNop()))

	c, w := newGinContext(http.MethodGet, "/assignments/a1", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}

	handler.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Essay")
}

func TestAssignmentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAssignmentHandler(service.NewAssignmentService(&assignmentRepoStub{}, &publisherStub{}, nil, zap.NewNop()))

	c, w := newGinContext(http.MethodGet, "/assignments/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
