package model

import "time"

type SnapshotStatus string

const (
	SnapshotStatusPending   SnapshotStatus = "pending"
	SnapshotStatusCompleted SnapshotStatus = "completed"
	SnapshotStatusFailed    SnapshotStatus = "failed"
)

// Snapshot records an encrypted copy of the database taken before a
// migration run rewrites documents.
type Snapshot struct {
	ID           int64          `json:"id"`
	Label        string         `json:"label"`
	Location     string         `json:"location"`
	SizeBytes    int64          `json:"sizeBytes"`
	Status       SnapshotStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}
