package session

import (
	"context"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

// CodeSource produces fresh task codes.
type CodeSource interface {
	Generate() string
}

// ProgressStore persists session snapshots across interruptions.
type ProgressStore interface {
	Save(sess Session) error
	Load(workerID string) (*Snapshot, error)
	Clear(workerID string) error
}

// Uploader moves a validated file into durable storage and returns its key.
type Uploader interface {
	Upload(ctx context.Context, file File, sess Session) (string, error)
}

// Notifier dispatches the completion summary. Implementations swallow
// their own failures; completion is already final when they run.
type Notifier interface {
	Notify(ctx context.Context, summary CompletionSummary)
}

// Ledger records telemetry best-effort. Only LookupWorker returns
// data; every other call swallows failures internally.
type Ledger interface {
	LookupWorker(ctx context.Context, workerID string) *ledger.Worker
	SessionStarted(ctx context.Context, rec ledger.SessionRecord)
	CodeGenerated(ctx context.Context, sessionID, workerID, codeValue string)
	ImageUploaded(ctx context.Context, sessionID, codeValue, filename, storageKey string, completedImages int)
	CodeSkipped(ctx context.Context, sessionID, codeValue string)
	SessionCompleted(ctx context.Context, sessionID string, completedImages, skippedCodes int, duration time.Duration)
}
