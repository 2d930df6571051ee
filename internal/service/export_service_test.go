package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
	"github.com/classdesk/classdesk-api/internal/repository"
	appErrors "github.com/classdesk/classdesk-api/pkg/errors"
	"github.com/classdesk/classdesk-api/pkg/jobs"
	"github.com/classdesk/classdesk-api/pkg/storage"
)

type mockExportStore struct {
	jobsByID  map[string]*models.ExportJob
	createErr error
	updates   []repository.UpdateExportJobParams
}

func newMockExportStore() *mockExportStore {
	return &mockExportStore{jobsByID: map[string]*models.ExportJob{}}
}

func (m *mockExportStore) Create(ctx context.Context, job *models.ExportJob) error {
	if m.createErr != nil {
		return m.createErr
	}
	if job.ID == "" {
		job.ID = "job1"
	}
	copied := *job
	m.jobsByID[job.ID] = &copied
	return nil
}

func (m *mockExportStore) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobsByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockExportStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobsByID[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.updates = append(m.updates, params)
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	out := []models.ExportJob{}
	for _, job := range m.jobsByID {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockExportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockExportStorage struct {
	saved map[string][]byte
}

func (m *mockExportStorage) Save(filename string, data []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *mockExportStorage) Open(filename string) (*os.File, error) {
	return nil, errors.New("not supported")
}

func (m *mockExportStorage) Delete(filename string) error { return nil }

func (m *mockExportStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) { return nil, nil }

func newExportService(store *mockExportStore, dispatcher *mockDispatcher, files *mockExportStorage) *ExportService {
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", Title: "Essay", DueDate: time.Now(), MaxPoints: 100},
	}}
	submissions := &stubSubmissionSource{submissions: []models.Submission{
		{ID: "sub1", AssignmentID: "a1", StudentEmail: "student@example.com", Status: models.SubmissionStatusGraded, Grade: intPtr(88), SubmittedAt: time.Now()},
	}}
	return NewExportService(store, assignments, submissions, dispatcher, files, signer, ExportServiceConfig{APIPrefix: "/api/v1"}, zap.NewNop())
}

func TestExportServiceCreateJobEnqueues(t *testing.T) {
	store := newMockExportStore()
	dispatcher := &mockDispatcher{}
	svc := newExportService(store, dispatcher, &mockExportStorage{})

	job, err := svc.CreateJob(context.Background(), models.CreateExportRequest{Format: models.ExportFormatCSV}, teacherClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, "t1", job.CreatedBy)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
}

func TestExportServiceCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	store := newMockExportStore()
	dispatcher := &mockDispatcher{err: errors.New("queue full")}
	svc := newExportService(store, dispatcher, &mockExportStorage{})

	_, err := svc.CreateJob(context.Background(), models.CreateExportRequest{Format: models.ExportFormatCSV}, teacherClaims())
	require.Error(t, err)
	stored := store.jobsByID["job1"]
	require.NotNil(t, stored)
	assert.Equal(t, models.ExportStatusFailed, stored.Status)
}

func TestExportServiceStatusEnforcesOwnership(t *testing.T) {
	store := newMockExportStore()
	store.jobsByID["job1"] = &models.ExportJob{ID: "job1", CreatedBy: "someone-else", Status: models.ExportStatusQueued}
	svc := newExportService(store, &mockDispatcher{}, &mockExportStorage{})

	_, err := svc.Status(context.Background(), "job1", teacherClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceHandleRendersCSV(t *testing.T) {
	store := newMockExportStore()
	store.jobsByID["job1"] = &models.ExportJob{ID: "job1", Format: models.ExportFormatCSV, CreatedBy: "t1", Status: models.ExportStatusQueued}
	files := &mockExportStorage{}
	svc := newExportService(store, &mockDispatcher{}, files)

	err := svc.Handle(context.Background(), jobs.Job{ID: "job1", Type: "csv"})
	require.NoError(t, err)

	job := store.jobsByID["job1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultURL)
	assert.True(t, strings.HasPrefix(*job.ResultURL, "/api/v1/exports/download/"))
	require.NotNil(t, job.FinishedAt)

	require.Len(t, files.saved, 1)
	for _, payload := range files.saved {
		content := string(payload)
		assert.Contains(t, content, "Essay")
		assert.Contains(t, content, "student@example.com")
		assert.Contains(t, content, "88")
	}
}

func TestExportServiceHandleFailureMarksFailed(t *testing.T) {
	store := newMockExportStore()
	store.jobsByID["job1"] = &models.ExportJob{ID: "job1", Format: models.ExportFormat("xml"), CreatedBy: "t1", Status: models.ExportStatusQueued}
	svc := newExportService(store, &mockDispatcher{}, &mockExportStorage{})

	err := svc.Handle(context.Background(), jobs.Job{ID: "job1", Type: "xml"})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, store.jobsByID["job1"].Status)
	require.NotNil(t, store.jobsByID["job1"].ErrorMessage)
}

func TestExportServiceRecoverPendingJobsRequeues(t *testing.T) {
	store := newMockExportStore()
	store.jobsByID["job1"] = &models.ExportJob{ID: "job1", Format: models.ExportFormatCSV, Status: models.ExportStatusQueued}
	store.jobsByID["job2"] = &models.ExportJob{ID: "job2", Format: models.ExportFormatPDF, Status: models.ExportStatusFinished}
	dispatcher := &mockDispatcher{}
	svc := newExportService(store, dispatcher, &mockExportStorage{})

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, "job1", dispatcher.enqueued[0].ID)
}
