package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/classdesk/classdesk-api/internal/models"
	appErrors "github.com/classdesk/classdesk-api/pkg/errors"
)

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes teacher and student dashboard payloads from the
// assignment and submission collections.
type DashboardService struct {
	assignments assignmentSnapshotSource
	submissions submissionSnapshotSource
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	now         func() time.Time
	cfg         DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(assignments assignmentSnapshotSource, submissions submissionSnapshotSource, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		assignments: assignments,
		submissions: submissions,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Teacher returns collection-wide counts and per-assignment submission
// tallies. The second return value reports cache utilisation.
func (s *DashboardService) Teacher(ctx context.Context) (*models.TeacherDashboard, bool, error) {
	const cacheKey = "dash:teacher"
	if s.cache != nil {
		var cached models.TeacherDashboard
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	assignments, submissions, err := s.loadCollections(ctx)
	if err != nil {
		return nil, false, err
	}

	dashboard := &models.TeacherDashboard{
		AssignmentCount: len(assignments),
		SubmissionCount: len(submissions),
		Assignments:     make([]models.TeacherDashboardRow, 0, len(assignments)),
		GeneratedAt:     s.now().UTC(),
	}

	perAssignment := make(map[string]*models.TeacherDashboardRow, len(assignments))
	for _, a := range assignments {
		dashboard.Assignments = append(dashboard.Assignments, models.TeacherDashboardRow{Assignment: a})
		perAssignment[a.ID] = &dashboard.Assignments[len(dashboard.Assignments)-1]
	}

	for _, sub := range submissions {
		graded := sub.Status == models.SubmissionStatusGraded
		if graded {
			dashboard.GradedCount++
		}
		if row, ok := perAssignment[sub.AssignmentID]; ok {
			row.SubmissionCount++
			if graded {
				row.GradedCount++
			}
		}
	}
	dashboard.PendingCount = dashboard.SubmissionCount - dashboard.GradedCount

	s.persistCache(ctx, cacheKey, dashboard)
	return dashboard, false, nil
}

// Student returns per-assignment progress for one student. Duplicate
// submissions for the same assignment resolve to the first match in store
// order, which is the most recent row.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*models.StudentDashboard, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	cacheKey := fmt.Sprintf("dash:student:%s", studentID)
	if s.cache != nil {
		var cached models.StudentDashboard
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	assignments, err := s.listAssignments(ctx)
	if err != nil {
		return nil, false, err
	}
	submissions, err := s.listSubmissions(ctx, models.SubmissionFilter{StudentID: studentID})
	if err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	dashboard := &models.StudentDashboard{
		Rows:            make([]models.StudentAssignmentRow, 0, len(assignments)),
		AssignmentCount: len(assignments),
		GeneratedAt:     now,
	}

	var gradeSum, gradeCount int
	for i := range assignments {
		a := assignments[i]
		row := models.StudentAssignmentRow{Assignment: a}
		if sub := firstSubmissionFor(submissions, a.ID); sub != nil {
			row.Submitted = true
			row.SubmittedLate = sub.SubmittedAt.After(a.DueDate)
			row.Submission = sub
			dashboard.SubmittedCount++
			if sub.Status == models.SubmissionStatusGraded && sub.Grade != nil {
				dashboard.GradedCount++
				gradeSum += *sub.Grade
				gradeCount++
				row.Percentage = gradePercentage(*sub.Grade, a.MaxPoints)
			}
		} else if now.After(a.DueDate) {
			// Past due with nothing submitted: the client renders the
			// late-submit action for this row.
			row.Overdue = true
			row.LateSubmit = true
		}
		dashboard.Rows = append(dashboard.Rows, row)
	}
	dashboard.AverageGrade = averageGrade(gradeSum, gradeCount)

	s.persistCache(ctx, cacheKey, dashboard)
	return dashboard, false, nil
}

// InvalidateAll drops every cached dashboard, called after collection writes.
func (s *DashboardService) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "dash:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) loadCollections(ctx context.Context) ([]models.Assignment, []models.Submission, error) {
	assignments, err := s.listAssignments(ctx)
	if err != nil {
		return nil, nil, err
	}
	submissions, err := s.listSubmissions(ctx, models.SubmissionFilter{})
	if err != nil {
		return nil, nil, err
	}
	return assignments, submissions, nil
}

func (s *DashboardService) listAssignments(ctx context.Context) ([]models.Assignment, error) {
	start := time.Now()
	assignments, err := s.assignments.List(ctx)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("assignments.list", time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	return assignments, nil
}

func (s *DashboardService) listSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	start := time.Now()
	submissions, err := s.submissions.List(ctx, filter)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("submissions.list", time.Since(start))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}
	return submissions, nil
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil && s.logger != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// firstSubmissionFor returns the first row matching the assignment, or nil.
// Submissions arrive submitted_at descending, so this is the newest row.
func firstSubmissionFor(submissions []models.Submission, assignmentID string) *models.Submission {
	for i := range submissions {
		if submissions[i].AssignmentID == assignmentID {
			return &submissions[i]
		}
	}
	return nil
}

// gradePercentage converts a raw grade to a rounded percentage of the
// assignment's maximum. It returns nil when maxPoints is not positive.
func gradePercentage(grade, maxPoints int) *int {
	if maxPoints <= 0 {
		return nil
	}
	pct := int(math.Round(float64(grade) / float64(maxPoints) * 100))
	return &pct
}

// averageGrade is the rounded mean of raw grades; an empty set yields 0.
func averageGrade(sum, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(count)))
}
