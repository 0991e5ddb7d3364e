// internal/models/job.go
package models

import "time"

// JobKind is the work a background job performs.
type JobKind string

const (
	JobTranscribe JobKind = "transcribe"
	JobOCR        JobKind = "ocr"
)

// JobStatus is a job lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further updates follow.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job tracks a background transcription or OCR run.
type Job struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	LessonID  string    `json:"lesson_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
