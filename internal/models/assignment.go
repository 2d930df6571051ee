package models

import "time"

// AssignmentStatus enumerates assignment lifecycle states.
// Assignments are never updated or deleted in-app, so only "active" is set.
type AssignmentStatus string

const (
	AssignmentStatusActive AssignmentStatus = "active"
)

// Assignment represents a piece of work published by a teacher.
type Assignment struct {
	ID             string           `db:"id" json:"id"`
	Title          string           `db:"title" json:"title"`
	Description    string           `db:"description" json:"description"`
	DueDate        time.Time        `db:"due_date" json:"due_date"`
	MaxPoints      int              `db:"max_points" json:"max_points"`
	CreatedBy      string           `db:"created_by" json:"created_by"`
	CreatedByEmail string           `db:"created_by_email" json:"created_by_email"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	Status         AssignmentStatus `db:"status" json:"status"`
}

// CreateAssignmentRequest is the teacher-facing creation payload.
type CreateAssignmentRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	MaxPoints   int       `json:"max_points" validate:"required,gt=0"`
}

// AssignmentFilter captures listing options.
type AssignmentFilter struct {
	Page     int
	PageSize int
}
