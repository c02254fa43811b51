package models

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusPolling   JobStatus = "polling"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// statusRank orders job states so transitions can never regress. Terminal
// states share the highest rank; a terminal job accepts no further writes.
var statusRank = map[JobStatus]int{
	JobStatusPending:   0,
	JobStatusSubmitted: 1,
	JobStatusPolling:   2,
	JobStatusCompleted: 3,
	JobStatusFailed:    3,
}

func (s JobStatus) Rank() int { return statusRank[s] }

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type GenerationMode string

const (
	ModeImage GenerationMode = "image"
	ModeVideo GenerationMode = "video"
)

type ErrorKind string

const (
	ErrorKindNone     ErrorKind = ""
	ErrorKindProvider ErrorKind = "provider"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindCanceled ErrorKind = "canceled"
)

type GenerationJob struct {
	ID             string
	UserID         string
	Provider       string
	Mode           GenerationMode
	Prompt         string
	ReferenceID    *string
	Status         JobStatus
	ProviderTaskID string
	CostCredits    int64
	ErrorKind      ErrorKind
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
