package models

import "time"

// Collection names mirror the two logical document collections.
const (
	CollectionAssignments = "assignments"
	CollectionSubmissions = "submissions"
)

// Snapshot is a full, ordered replacement of a cached collection. Consumers
// always receive complete snapshots, never incremental patches, so a reader
// can never observe a partially updated collection.
type Snapshot struct {
	Collection  string       `json:"collection"`
	Assignments []Assignment `json:"assignments,omitempty"`
	Submissions []Submission `json:"submissions,omitempty"`
	EmittedAt   time.Time    `json:"emitted_at"`
}
