package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
)

type stubAssignmentSource struct {
	assignments []models.Assignment
	err         error
}

func (s *stubAssignmentSource) List(ctx context.Context) ([]models.Assignment, error) {
	return s.assignments, s.err
}

type stubSubmissionSource struct {
	submissions []models.Submission
	err         error
}

func (s *stubSubmissionSource) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	if s.err != nil {
		return nil, s.err
	}
	if filter.StudentID == "" {
		return s.submissions, nil
	}
	out := []models.Submission{}
	for _, sub := range s.submissions {
		if sub.StudentID == filter.StudentID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func TestDashboardServiceTeacherCounts(t *testing.T) {
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", Title: "Essay", MaxPoints: 100},
		{ID: "a2", Title: "Quiz", MaxPoints: 20},
	}}
	submissions := &stubSubmissionSource{submissions: []models.Submission{
		{ID: "sub1", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: intPtr(80)},
		{ID: "sub2", AssignmentID: "a1", StudentID: "s2", Status: models.SubmissionStatusSubmitted},
		{ID: "sub3", AssignmentID: "a2", StudentID: "s1", Status: models.SubmissionStatusSubmitted},
	}}
	svc := NewDashboardService(assignments, submissions, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	dash, cached, err := svc.Teacher(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, dash.AssignmentCount)
	assert.Equal(t, 3, dash.SubmissionCount)
	assert.Equal(t, 1, dash.GradedCount)
	assert.Equal(t, 2, dash.PendingCount)

	require.Len(t, dash.Assignments, 2)
	assert.Equal(t, 2, dash.Assignments[0].SubmissionCount)
	assert.Equal(t, 1, dash.Assignments[0].GradedCount)
	assert.Equal(t, 1, dash.Assignments[1].SubmissionCount)
	assert.Equal(t, 0, dash.Assignments[1].GradedCount)
}

func TestDashboardServiceStudentProgress(t *testing.T) {
	now := time.Now().UTC()
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", Title: "Graded", DueDate: now.Add(24 * time.Hour), MaxPoints: 50},
		{ID: "a2", Title: "Pending", DueDate: now.Add(24 * time.Hour), MaxPoints: 100},
		{ID: "a3", Title: "Missed", DueDate: now.Add(-24 * time.Hour), MaxPoints: 100},
	}}
	submissions := &stubSubmissionSource{submissions: []models.Submission{
		{ID: "sub1", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: intPtr(40), SubmittedAt: now.Add(-time.Hour)},
		{ID: "sub2", AssignmentID: "a2", StudentID: "s1", Status: models.SubmissionStatusSubmitted, SubmittedAt: now.Add(-time.Hour)},
	}}
	svc := NewDashboardService(assignments, submissions, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	dash, _, err := svc.Student(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, dash.AssignmentCount)
	assert.Equal(t, 2, dash.SubmittedCount)
	assert.Equal(t, 1, dash.GradedCount)
	assert.Equal(t, 40, dash.AverageGrade)

	require.Len(t, dash.Rows, 3)
	graded := dash.Rows[0]
	assert.True(t, graded.Submitted)
	require.NotNil(t, graded.Percentage)
	assert.Equal(t, 80, *graded.Percentage)

	pending := dash.Rows[1]
	assert.True(t, pending.Submitted)
	assert.Nil(t, pending.Percentage)
	assert.False(t, pending.Overdue)

	missed := dash.Rows[2]
	assert.False(t, missed.Submitted)
	assert.True(t, missed.Overdue)
}

func TestDashboardServiceStudentLateSubmission(t *testing.T) {
	now := time.Now().UTC()
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", DueDate: now.Add(-48 * time.Hour), MaxPoints: 100},
	}}
	submissions := &stubSubmissionSource{submissions: []models.Submission{
		{ID: "sub1", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusSubmitted, SubmittedAt: now.Add(-time.Hour)},
	}}
	svc := NewDashboardService(assignments, submissions, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	dash, _, err := svc.Student(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, dash.Rows, 1)
	assert.True(t, dash.Rows[0].Submitted)
	assert.True(t, dash.Rows[0].SubmittedLate)
	assert.False(t, dash.Rows[0].LateSubmit)
	assert.False(t, dash.Rows[0].Overdue)
}

func TestDashboardServiceStudentOverdueRowOffersLateSubmit(t *testing.T) {
	now := time.Now().UTC()
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", DueDate: now.Add(-24 * time.Hour), MaxPoints: 100},
	}}
	submissions := &stubSubmissionSource{}
	svc := NewDashboardService(assignments, submissions, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	dash, _, err := svc.Student(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, dash.Rows, 1)
	assert.False(t, dash.Rows[0].Submitted)
	assert.True(t, dash.Rows[0].Overdue)
	assert.True(t, dash.Rows[0].LateSubmit)
	assert.False(t, dash.Rows[0].SubmittedLate)
}

func TestDashboardServiceStudentDuplicateSubmissionsFirstMatch(t *testing.T) {
	now := time.Now().UTC()
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", DueDate: now.Add(24 * time.Hour), MaxPoints: 100},
	}}
	// newest first, matching store order
	submissions := &stubSubmissionSource{submissions: []models.Submission{
		{ID: "newer", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusSubmitted, SubmittedAt: now},
		{ID: "older", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: intPtr(90), SubmittedAt: now.Add(-time.Hour)},
	}}
	svc := NewDashboardService(assignments, submissions, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	dash, _, err := svc.Student(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, dash.Rows, 1)
	require.NotNil(t, dash.Rows[0].Submission)
	assert.Equal(t, "newer", dash.Rows[0].Submission.ID)
	assert.Equal(t, 0, dash.GradedCount)
}

func TestDashboardServiceRecordsDBQueryTimings(t *testing.T) {
	assignments := &stubAssignmentSource{assignments: []models.Assignment{{ID: "a1", MaxPoints: 100}}}
	submissions := &stubSubmissionSource{}
	metrics := NewMetricsService()
	svc := NewDashboardService(assignments, submissions, nil, metrics, zap.NewNop(), DashboardServiceConfig{})

	_, _, err := svc.Teacher(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), metrics.Snapshot().DBQueryCount)

	_, _, err = svc.Student(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), metrics.Snapshot().DBQueryCount)
}

func TestGradePercentageGuardsZeroMaxPoints(t *testing.T) {
	assert.Nil(t, gradePercentage(50, 0))
	assert.Nil(t, gradePercentage(50, -10))

	pct := gradePercentage(1, 3)
	require.NotNil(t, pct)
	assert.Equal(t, 33, *pct)
}

func TestAverageGradeEmptySetIsZero(t *testing.T) {
	assert.Equal(t, 0, averageGrade(0, 0))
	assert.Equal(t, 83, averageGrade(250, 3))
}

func TestDashboardServiceStudentAverageIgnoresMaxPoints(t *testing.T) {
	now := time.Now().UTC()
	assignments := &stubAssignmentSource{assignments: []models.Assignment{
		{ID: "a1", DueDate: now.Add(time.Hour), MaxPoints: 50},
		{ID: "a2", DueDate: now.Add(time.Hour), MaxPoints: 200},
	}}
	submissions := &stubSubmissionSource{submissions: []models.Submission{
		{ID: "sub1", AssignmentID: "a1", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: intPtr(45), SubmittedAt: now},
		{ID: "sub2", AssignmentID: "a2", StudentID: "s1", Status: models.SubmissionStatusGraded, Grade: intPtr(150), SubmittedAt: now},
	}}
	svc := NewDashboardService(assignments, submissions, nil, nil, zap.NewNop(), DashboardServiceConfig{})

	dash, _, err := svc.Student(context.Background(), "s1")
	require.NoError(t, err)
	// raw grades averaged, not percentages
	assert.Equal(t, 98, dash.AverageGrade)
}
