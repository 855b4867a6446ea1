package ledger

import (
	"context"
	"log/slog"
	"time"
)

// Recorder is the single point where telemetry failures are swallowed.
// Every write runs through record, which logs the error and returns;
// no ledger failure ever reaches the worker's task flow.
type Recorder struct {
	workers  WorkerRepository
	sessions SessionRepository
	codes    CodeRepository
	logger   *slog.Logger
}

// NewRecorder creates a best-effort ledger recorder.
func NewRecorder(workers WorkerRepository, sessions SessionRepository, codes CodeRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		workers:  workers,
		sessions: sessions,
		codes:    codes,
		logger:   logger,
	}
}

func (r *Recorder) record(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		r.logger.Warn("ledger write failed", "op", op, "error", err)
	}
}

// LookupWorker fetches a worker record, used only to check the ban
// flag. Not-found and lookup failures both yield nil.
func (r *Recorder) LookupWorker(ctx context.Context, workerID string) *Worker {
	w, err := r.workers.Get(ctx, workerID)
	if err != nil {
		if err != ErrNotFound {
			r.logger.Warn("ledger lookup failed", "op", "worker.get", "error", err)
		}
		return nil
	}
	return w
}

// SessionStarted records the worker upsert and the new session row.
func (r *Recorder) SessionStarted(ctx context.Context, rec SessionRecord) {
	r.record(ctx, "worker.upsert", func(ctx context.Context) error {
		return r.workers.Upsert(ctx, rec.WorkerID, rec.StartedAt)
	})
	r.record(ctx, "session.insert", func(ctx context.Context) error {
		return r.sessions.Insert(ctx, rec)
	})
}

// CodeGenerated records a freshly generated code.
func (r *Recorder) CodeGenerated(ctx context.Context, sessionID, workerID, codeValue string) {
	r.record(ctx, "code.insert", func(ctx context.Context) error {
		return r.codes.InsertGenerated(ctx, CodeRecord{
			SessionID:   sessionID,
			WorkerID:    workerID,
			Code:        codeValue,
			GeneratedAt: time.Now(),
			Status:      CodeGenerated,
		})
	})
}

// ImageUploaded marks the code completed and refreshes the session
// counters, mirroring the two writes a successful upload produces.
func (r *Recorder) ImageUploaded(ctx context.Context, sessionID, codeValue, filename, storageKey string, completedImages int) {
	now := time.Now()
	r.record(ctx, "code.complete", func(ctx context.Context) error {
		return r.codes.MarkCompleted(ctx, sessionID, codeValue, filename, storageKey, now)
	})
	r.record(ctx, "session.counters", func(ctx context.Context) error {
		return r.sessions.UpdateCounters(ctx, sessionID, completedImages, now)
	})
}

// CodeSkipped marks a code skipped.
func (r *Recorder) CodeSkipped(ctx context.Context, sessionID, codeValue string) {
	r.record(ctx, "code.skip", func(ctx context.Context) error {
		return r.codes.MarkSkipped(ctx, sessionID, codeValue, time.Now())
	})
}

// SessionCompleted records session completion with its duration.
func (r *Recorder) SessionCompleted(ctx context.Context, sessionID string, completedImages, skippedCodes int, duration time.Duration) {
	r.record(ctx, "session.complete", func(ctx context.Context) error {
		return r.sessions.Complete(ctx, sessionID, completedImages, skippedCodes, int(duration.Seconds()), time.Now())
	})
}
