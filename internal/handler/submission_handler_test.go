package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/middleware"
	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/service"
	"github.com/classdesk/classdesk-api/pkg/storage"
)

type submissionRepoStub struct {
	submissions []models.Submission
}

func (m *submissionRepoStub) Create(ctx context.Context, s *models.Submission) error {
	m.submissions = append([]models.Submission{*s}, m.submissions...)
	return nil
}

func (m *submissionRepoStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	for i := range m.submissions {
		if m.submissions[i].ID == id {
			return &m.submissions[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *submissionRepoStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	return m.submissions, nil
}

func (m *submissionRepoStub) Grade(ctx context.Context, id string, grade int, feedback string, gradedAt time.Time) error {
	for i := range m.submissions {
		if m.submissions[i].ID == id {
			g := grade
			m.submissions[i].Grade = &g
			m.submissions[i].Status = models.SubmissionStatusGraded
			return nil
		}
	}
	return sql.ErrNoRows
}

func newSubmissionHandler(repo *submissionRepoStub, maxUpload int64) *SubmissionHandler {
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := service.NewSubmissionService(repo, &publisherStub{}, nil, signer, nil, zap.NewNop())
	return NewSubmissionHandler(svc, maxUpload)
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmissionHandlerSubmitMultipart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &submissionRepoStub{}
	handler := newSubmissionHandler(repo, 0)

	body, contentType := multipartUpload(t, "essay.pdf", []byte("file content"))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/assignments/a1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Email: "student@example.com", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.submissions, 1)
	assert.Equal(t, "essay.pdf", repo.submissions[0].FileName)
	assert.Equal(t, "s1", repo.submissions[0].StudentID)
}

func TestSubmissionHandlerSubmitRejectsOversizedFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSubmissionHandler(&submissionRepoStub{}, 4)

	body, contentType := multipartUpload(t, "big.pdf", []byte("more than four bytes"))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/assignments/a1/submissions", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSubmissionHandlerSubmitMetadataOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &submissionRepoStub{}
	handler := newSubmissionHandler(repo, 0)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("file_name", "notes.txt"))
	require.NoError(t, writer.WriteField("file_size", "128"))
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/assignments/a1/submissions", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "s1", Role: models.RoleStudent})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.submissions, 1)
	assert.Equal(t, int64(128), repo.submissions[0].FileSize)
}

func TestSubmissionHandlerGrade(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &submissionRepoStub{submissions: []models.Submission{{ID: "sub1", AssignmentID: "a1", StudentID: "s1"}}}
	handler := newSubmissionHandler(repo, 0)

	grade := 85
	payload, _ := json.Marshal(models.GradeSubmissionRequest{Grade: &grade, Feedback: "nice"})
	c, w := newGinContext(http.MethodPatch, "/submissions/sub1/grade", payload)
	c.Params = gin.Params{{Key: "id", Value: "sub1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Grade(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.submissions[0].Grade)
	assert.Equal(t, 85, *repo.submissions[0].Grade)
}

func TestSubmissionHandlerGradeMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSubmissionHandler(&submissionRepoStub{}, 0)

	grade := 85
	payload, _ := json.Marshal(models.GradeSubmissionRequest{Grade: &grade})
	c, w := newGinContext(http.MethodPatch, "/submissions/missing/grade", payload)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Grade(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissionHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &submissionRepoStub{submissions: []models.Submission{{ID: "sub1", AssignmentID: "a1", StudentID: "s1"}}}
	handler := newSubmissionHandler(repo, 0)

	c, w := newGinContext(http.MethodGet, "/submissions", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sub1")
}
