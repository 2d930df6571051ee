package handler

import (
	"context"
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
	"github.com/classdesk/classdesk-api/pkg/response"
)

type assignmentSourceStub struct {
	assignments []models.Assignment
}

func (m *assignmentSourceStub) List(ctx context.Context) ([]models.Assignment, error) {
	return m.assignments, nil
}

type submissionSourceStub struct {
	submissions []models.Submission
}

func (m *submissionSourceStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	if filter.StudentID == "" {
		return m.submissions, nil
	}
	out := []models.Submission{}
	for _, s := range m.submissions {
		if s.StudentID == filter.StudentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestDashboardHandlerTeacher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	grade := 90
	svc := service.NewDashboardService(
		&assignmentSourceStub{assignments: []models.Assignment{{ID: "a1", MaxPoints: 100}}},
		&submissionSourceStub{submissions: []models.Submission{
			{ID: "sub1", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: &grade},
		}},
		nil, nil, zap.NewNop(), service.DashboardServiceConfig{})
	handler := NewDashboardHandler(svc)

	c, w := newGinContext(http.MethodGet, "/dashboards/teacher", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Teacher(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var dash models.TeacherDashboard
	require.NoError(t, json.Unmarshal(payload, &dash))
	assert.Equal(t, 1, dash.AssignmentCount)
	assert.Equal(t, 1, dash.GradedCount)
	assert.Equal(t, 0, dash.PendingCount)
}

func TestDashboardHandlerStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	grade := 40
	now := time.Now().UTC()
	svc := service.NewDashboardService(
		&assignmentSourceStub{assignments: []models.Assignment{{ID: "a1", DueDate: now.Add(time.Hour), MaxPoints: 50}}},
		&submissionSourceStub{submissions: []models.Submission{
			{ID: "sub1", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: &grade, SubmittedAt: now},
		}},
		nil, nil, zap.NewNop(), service.DashboardServiceConfig{})
	handler := NewDashboardHandler(svc)

	c, w := newGinContext(http.MethodGet, "/dashboards/student", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	handler.Student(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	payload, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var dash models.StudentDashboard
	require.NoError(t, json.Unmarshal(payload, &dash))
	assert.Equal(t, 40, dash.AverageGrade)
	require.Len(t, dash.Rows, 1)
	require.NotNil(t, dash.Rows[0].Percentage)
	assert.Equal(t, 80, *dash.Rows[0].Percentage)
}
