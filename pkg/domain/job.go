package domain

import (
	"encoding"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one backend collage-generation task. The backend is the sole
// source of truth: the client replaces the whole value with each status
// snapshot and never mutates fields in place.
type Job struct {
	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	// OutputFile is the backend-side artifact name, set once the job
	// completes.
	OutputFile  string    `json:"output_file,omitempty"`
	FileCount   int       `json:"file_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt string    `json:"completed_at,omitempty"` // RFC3339
}

// OutputAvailable reports whether a downloadable artifact exists for the job.
func (j Job) OutputAvailable() bool {
	return j.Status == StatusCompleted && j.OutputFile != ""
}

// NewPendingJob is the locally synthesized snapshot held between submission
// and the first poll response.
func NewPendingJob(id string, now time.Time) Job {
	return Job{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
}

type CreateResponse struct {
	JobID   string    `json:"job_id"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

type JobList struct {
	Jobs  []Job `json:"jobs"`
	Total int   `json:"total"`
}

type HealthReport struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
	Jobs    int    `json:"jobs,omitempty"`
}

type ServiceInfo struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Message   string   `json:"message,omitempty"`
	Endpoints []string `json:"endpoints,omitempty"`
}

var (
	_ encoding.BinaryMarshaler = JobStatus("")
	_ encoding.TextMarshaler   = JobStatus("")
)

func (s JobStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s JobStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
