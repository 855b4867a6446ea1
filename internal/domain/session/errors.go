package session

import "errors"

var (
	// ErrInvalidWorkerID indicates the worker ID doesn't match the configured pattern.
	ErrInvalidWorkerID = errors.New("worker ID must be 3-20 characters, letters and numbers only")
	// ErrWorkerBanned indicates the worker ID carries the ban flag.
	ErrWorkerBanned = errors.New("this worker ID has been banned")
	// ErrInvalidFile indicates the file type isn't in the allow-list.
	ErrInvalidFile = errors.New("file type not allowed")
	// ErrFileTooLarge indicates the file exceeds the configured maximum.
	ErrFileTooLarge = errors.New("file too large")
	// ErrNotActive indicates the operation needs an active session.
	ErrNotActive = errors.New("no active session")
	// ErrSessionExists indicates the machine already left NoSession.
	ErrSessionExists = errors.New("session already started")
	// ErrSnapshotStale indicates the snapshot is too old to resume from.
	ErrSnapshotStale = errors.New("saved progress has expired")
)
