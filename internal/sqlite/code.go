package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

// CodeRepository implements ledger.CodeRepository for SQLite.
type CodeRepository struct {
	db *DB
}

// NewCodeRepository creates a new CodeRepository.
func NewCodeRepository(db *DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// InsertGenerated records a code the moment it is issued.
func (r *CodeRepository) InsertGenerated(ctx context.Context, rec ledger.CodeRecord) error {
	query := `
		INSERT INTO codes (session_id, worker_id, code, generated_at, status)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.WorkerID,
		rec.Code,
		rec.GeneratedAt,
		ledger.CodeGenerated,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ledger.ErrForeignKeyViolation
		}
		return fmt.Errorf("failed to insert code: %w", err)
	}
	return nil
}

// MarkCompleted records the stored object against the code. Codes are
// keyed by (session_id, code) because the same value can recur across
// sessions.
func (r *CodeRepository) MarkCompleted(ctx context.Context, sessionID, codeValue, filename, storageKey string, completedAt time.Time) error {
	query := `
		UPDATE codes
		SET status = ?, completed_at = ?, filename = ?, storage_key = ?
		WHERE session_id = ? AND code = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		ledger.CodeCompleted,
		completedAt,
		filename,
		storageKey,
		sessionID,
		codeValue,
	)
	if err != nil {
		return fmt.Errorf("failed to mark code completed: %w", err)
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

// MarkSkipped records that the worker passed on a code.
func (r *CodeRepository) MarkSkipped(ctx context.Context, sessionID, codeValue string, skippedAt time.Time) error {
	query := `
		UPDATE codes
		SET status = ?, skipped_at = ?
		WHERE session_id = ? AND code = ?
	`

	result, err := r.db.ExecContext(ctx, query, ledger.CodeSkipped, skippedAt, sessionID, codeValue)
	if err != nil {
		return fmt.Errorf("failed to mark code skipped: %w", err)
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
