package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/classdesk/classdesk-api/internal/models"
)

// SubmissionRepository provides database access for submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new instance of SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `id, assignment_id, student_id, student_email, file_name, file_size, file_path, submitted_at, status, grade, feedback, graded_at`

// Create inserts a new submission row. Duplicate rows per
// (student, assignment) are allowed on purpose.
func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	const query = `INSERT INTO submissions (id, assignment_id, student_id, student_email, file_name, file_size, file_path, submitted_at, status, grade, feedback, graded_at) VALUES (:id, :assignment_id, :student_id, :student_email, :file_name, :file_size, :file_path, :submitted_at, :status, :grade, :feedback, :graded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID returns a submission by identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions WHERE id = $1 LIMIT 1`, submissionColumns)
	var s models.Submission
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return &s, nil
}

// List returns submissions ordered by submitted_at descending, optionally
// filtered by assignment, student and status.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	baseQuery := `FROM submissions WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY submitted_at DESC", submissionColumns, baseQuery)
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// Grade sets grade, feedback and graded state on a submission. The update is
// unconditional: regrading overwrites the previous values (last write wins).
func (r *SubmissionRepository) Grade(ctx context.Context, id string, grade int, feedback string, gradedAt time.Time) error {
	const query = `UPDATE submissions SET grade = $2, feedback = $3, status = $4, graded_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, grade, feedback, models.SubmissionStatusGraded, gradedAt)
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
