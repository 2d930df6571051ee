package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/middleware"
	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/repository"
	"github.com/classdesk/classdesk-api/internal/service"
	"github.com/classdesk/classdesk-api/pkg/jobs"
	"github.com/classdesk/classdesk-api/pkg/storage"
)

type exportStoreStub struct {
	jobsByID map[string]*models.ExportJob
}

func (m *exportStoreStub) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = "job1"
	}
	if m.jobsByID == nil {
		m.jobsByID = map[string]*models.ExportJob{}
	}
	copied := *job
	m.jobsByID[job.ID] = &copied
	return nil
}

func (m *exportStoreStub) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobsByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *exportStoreStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	return nil
}

func (m *exportStoreStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

func (m *exportStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type dispatcherStub struct {
	enqueued []jobs.Job
}

func (m *dispatcherStub) Enqueue(job jobs.Job) error {
	m.enqueued = append(m.enqueued, job)
	return nil
}

type exportStorageStub struct{}

func (m *exportStorageStub) Save(filename string, data []byte) (string, error) { return filename, nil }
func (m *exportStorageStub) Open(filename string) (*os.File, error)            { return nil, os.ErrNotExist }
func (m *exportStorageStub) Delete(filename string) error                      { return nil }
func (m *exportStorageStub) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	return nil, nil
}

func newExportHandler(store *exportStoreStub, dispatcher *dispatcherStub) *ExportHandler {
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := service.NewExportService(store, &assignmentSourceStub{}, &submissionSourceStub{}, dispatcher, &exportStorageStub{}, signer, service.ExportServiceConfig{APIPrefix: "/api/v1"}, zap.NewNop())
	return NewExportHandler(svc)
}

func TestExportHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &exportStoreStub{}
	dispatcher := &dispatcherStub{}
	handler := newExportHandler(store, dispatcher)

	payload, _ := json.Marshal(models.CreateExportRequest{Format: models.ExportFormatCSV})
	c, w := newGinContext(http.MethodPost, "/exports", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Create(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, dispatcher.enqueued, 1)
}

func TestExportHandlerCreateInvalidFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newExportHandler(&exportStoreStub{}, &dispatcherStub{})

	c, w := newGinContext(http.MethodPost, "/exports", []byte(`{"format":"xml"}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportHandlerStatusForbiddenForOtherUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &exportStoreStub{jobsByID: map[string]*models.ExportJob{
		"job1": {ID: "job1", CreatedBy: "someone-else", Status: models.ExportStatusQueued},
	}}
	handler := newExportHandler(store, &dispatcherStub{})

	c, w := newGinContext(http.MethodGet, "/exports/job1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})

	handler.Status(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newExportHandler(&exportStoreStub{}, &dispatcherStub{})

	c, w := newGinContext(http.MethodGet, "/exports/download/bogus", nil)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "invalid or expired")
}
