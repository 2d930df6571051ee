package models

import "time"

// TeacherDashboard aggregates counts over the cached collections.
type TeacherDashboard struct {
	AssignmentCount int                        `json:"assignment_count"`
	SubmissionCount int                        `json:"submission_count"`
	GradedCount     int                        `json:"graded_count"`
	PendingCount    int                        `json:"pending_count"`
	Assignments     []TeacherDashboardRow      `json:"assignments"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}

// TeacherDashboardRow decorates an assignment with its submission tally.
type TeacherDashboardRow struct {
	Assignment      Assignment `json:"assignment"`
	SubmissionCount int        `json:"submission_count"`
	GradedCount     int        `json:"graded_count"`
}

// StudentDashboard presents per-assignment progress for one student.
type StudentDashboard struct {
	Rows            []StudentAssignmentRow `json:"rows"`
	AssignmentCount int                    `json:"assignment_count"`
	SubmittedCount  int                    `json:"submitted_count"`
	GradedCount     int                    `json:"graded_count"`
	AverageGrade    int                    `json:"average_grade"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// StudentAssignmentRow describes one assignment from the student's viewpoint.
// Submission is the first matching row in store order when duplicates exist.
// LateSubmit marks an overdue assignment still open for a late submission;
// SubmittedLate marks work that arrived after the due date.
type StudentAssignmentRow struct {
	Assignment    Assignment  `json:"assignment"`
	Submitted     bool        `json:"submitted"`
	Overdue       bool        `json:"overdue"`
	LateSubmit    bool        `json:"late_submit"`
	SubmittedLate bool        `json:"submitted_late"`
	Submission    *Submission `json:"submission,omitempty"`
	Percentage    *int        `json:"percentage,omitempty"`
}
