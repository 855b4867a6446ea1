package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

// SessionRepository implements ledger.SessionRepository for SQLite.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert records a newly started session.
func (r *SessionRepository) Insert(ctx context.Context, rec ledger.SessionRecord) error {
	query := `
		INSERT INTO sessions (session_id, worker_id, started_at, target_images, completed_images, skipped_codes, status, last_activity)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.WorkerID,
		rec.StartedAt,
		rec.TargetImages,
		ledger.SessionActive,
		rec.StartedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ledger.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// UpdateCounters refreshes progress after an upload lands.
func (r *SessionRepository) UpdateCounters(ctx context.Context, sessionID string, completedImages int, lastActivity time.Time) error {
	query := `
		UPDATE sessions
		SET completed_images = ?, last_activity = ?
		WHERE session_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, completedImages, lastActivity, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session counters: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// Complete closes out a session with its final tallies.
func (r *SessionRepository) Complete(ctx context.Context, sessionID string, completedImages, skippedCodes, durationSeconds int, completedAt time.Time) error {
	query := `
		UPDATE sessions
		SET status = ?, completed_images = ?, skipped_codes = ?, duration_seconds = ?, completed_at = ?, last_activity = ?
		WHERE session_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		ledger.SessionCompleted,
		completedImages,
		skippedCodes,
		durationSeconds,
		completedAt,
		completedAt,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}
