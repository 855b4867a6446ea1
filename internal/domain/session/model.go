package session

import "time"

// Status represents the lifecycle status of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// State is the machine state driving which operations are permitted.
type State string

const (
	StateNoSession State = "no_session"
	StateActive    State = "active"
	StateUploading State = "uploading"
	StateCompleted State = "completed"
)

// Session is the authoritative in-memory state of one worker's
// collection run. The Machine is its sole mutator; every collaborator
// receives a copy.
type Session struct {
	WorkerID        string    `json:"worker_id"`
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	CompletedImages int       `json:"completed_images"`
	SkippedCodes    int       `json:"skipped_codes"`
	CurrentCode     string    `json:"current_code"`
	Status          Status    `json:"status"`
}

// Snapshot is the persisted serialization of a Session plus a write
// timestamp. Field names match the stored layout.
type Snapshot struct {
	WorkerID         string `json:"workerId"`
	CompletedImages  int    `json:"completedImages"`
	SkippedCodes     int    `json:"skippedCodes"`
	SessionStartTime int64  `json:"sessionStartTime"`
	SessionID        string `json:"sessionId"`
	CurrentCode      string `json:"currentCode"`
	Timestamp        int64  `json:"timestamp"`
}

// CompletionSummary is the read-only view assembled when a session
// reaches its target.
type CompletionSummary struct {
	WorkerID        string    `json:"worker_id"`
	CompletedImages int       `json:"completed_images"`
	DurationSeconds int       `json:"duration_seconds"`
	SkippedCodes    int       `json:"skipped_codes"`
	CompletionCode  string    `json:"completion_code"`
	StartedAt       time.Time `json:"started_at"`
}

// File is a worker-selected image handed to the upload pipeline.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
