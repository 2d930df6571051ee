package models

import "time"

// SubmissionStatus enumerates submission lifecycle states.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusGraded    SubmissionStatus = "graded"
)

// Submission represents a student's uploaded answer for an assignment.
// Nothing enforces uniqueness per (student, assignment); duplicate rows are
// permitted and lookups take the first match in store order.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	StudentEmail string           `db:"student_email" json:"student_email"`
	FileName     string           `db:"file_name" json:"file_name"`
	FileSize     int64            `db:"file_size" json:"file_size"`
	FilePath     string           `db:"file_path" json:"-"`
	SubmittedAt  time.Time        `db:"submitted_at" json:"submitted_at"`
	Status       SubmissionStatus `db:"status" json:"status"`
	Grade        *int             `db:"grade" json:"grade,omitempty"`
	Feedback     *string          `db:"feedback" json:"feedback,omitempty"`
	GradedAt     *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
}

// SubmitAssignmentRequest records submission metadata. File bytes arrive as a
// separate multipart part and may be absent (metadata-only declarations).
type SubmitAssignmentRequest struct {
	FileName string `json:"file_name" form:"file_name" validate:"required"`
	FileSize int64  `json:"file_size" form:"file_size" validate:"gte=0"`
}

// GradeSubmissionRequest is the teacher-facing grading payload. Regrading an
// already graded submission overwrites grade, feedback and graded_at.
type GradeSubmissionRequest struct {
	Grade    *int   `json:"grade" validate:"required,gte=0,lte=100"`
	Feedback string `json:"feedback"`
}

// SubmissionFilter captures listing options.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	Status       SubmissionStatus
	Page         int
	PageSize     int
}
