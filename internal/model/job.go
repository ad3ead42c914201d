package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobRequested  JobStatus = "REQUESTED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobValidating JobStatus = "VALIDATING"
	JobAccepted   JobStatus = "ACCEPTED"
	JobRejected   JobStatus = "REJECTED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobRequested, JobInProgress, JobValidating, JobAccepted, JobRejected:
		return true
	}
	return false
}

// Terminal reports whether the job can no longer change status.
func (s JobStatus) Terminal() bool {
	return s == JobAccepted || s == JobRejected
}

type Job struct {
	ID               string          `json:"id"`
	TaskID           string          `json:"taskId"`
	ListID           string          `json:"listId"`
	WorkerID         string          `json:"workerId"`
	Status           JobStatus       `json:"status"`
	SelfReview       json.RawMessage `json:"selfReview,omitempty"`
	PeerReview       json.RawMessage `json:"peerReview,omitempty"`
	ManagerReview    json.RawMessage `json:"managerReview,omitempty"`
	ReviewerIDs      []string        `json:"reviewerIds"`
	ReviewersNoteIDs []string        `json:"reviewersNoteIds"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Version          int64           `json:"-"`
}
