// Package ledger records worker, session and code telemetry in the
// external database. Every write is best effort: the worker's task
// flow must never block on telemetry.
package ledger

import (
	"context"
	"time"
)

// Worker is a row in the workers table.
type Worker struct {
	WorkerID      string
	LastSeen      time.Time
	TotalSessions int
	IsBanned      bool
}

// SessionRecord is a row in the sessions table.
type SessionRecord struct {
	SessionID       string
	WorkerID        string
	StartedAt       time.Time
	TargetImages    int
	CompletedImages int
	SkippedCodes    int
	Status          string
	CompletedAt     *time.Time
	DurationSeconds *int
	LastActivity    *time.Time
}

// CodeRecord is a row in the codes table.
type CodeRecord struct {
	SessionID   string
	WorkerID    string
	Code        string
	GeneratedAt time.Time
	Status      string
	CompletedAt *time.Time
	Filename    *string
	StorageKey  *string
	SkippedAt   *time.Time
}

// Code statuses.
const (
	CodeGenerated = "generated"
	CodeCompleted = "completed"
	CodeSkipped   = "skipped"
)

// Session statuses.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// WorkerRepository provides persistence for worker records.
type WorkerRepository interface {
	// Upsert inserts the worker or bumps last_seen and total_sessions.
	Upsert(ctx context.Context, workerID string, seenAt time.Time) error
	Get(ctx context.Context, workerID string) (*Worker, error)
}

// SessionRepository provides persistence for session records.
type SessionRepository interface {
	Insert(ctx context.Context, rec SessionRecord) error
	UpdateCounters(ctx context.Context, sessionID string, completedImages int, lastActivity time.Time) error
	Complete(ctx context.Context, sessionID string, completedImages, skippedCodes, durationSeconds int, completedAt time.Time) error
}

// CodeRepository provides persistence for per-code records.
type CodeRepository interface {
	InsertGenerated(ctx context.Context, rec CodeRecord) error
	MarkCompleted(ctx context.Context, sessionID, codeValue, filename, storageKey string, completedAt time.Time) error
	MarkSkipped(ctx context.Context, sessionID, codeValue string, skippedAt time.Time) error
}
