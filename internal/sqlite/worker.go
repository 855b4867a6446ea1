package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

// WorkerRepository implements ledger.WorkerRepository for SQLite.
type WorkerRepository struct {
	db *DB
}

// NewWorkerRepository creates a new WorkerRepository.
func NewWorkerRepository(db *DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

// Upsert inserts the worker or refreshes last_seen and bumps the
// session count. The ban flag is never touched from here.
func (r *WorkerRepository) Upsert(ctx context.Context, workerID string, seenAt time.Time) error {
	query := `
		INSERT INTO workers (worker_id, last_seen, total_sessions, is_banned)
		VALUES (?, ?, 1, 0)
		ON CONFLICT(worker_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			total_sessions = workers.total_sessions + 1
	`

	if _, err := r.db.ExecContext(ctx, query, workerID, seenAt); err != nil {
		return fmt.Errorf("failed to upsert worker: %w", err)
	}
	return nil
}

// Get retrieves a worker by ID.
func (r *WorkerRepository) Get(ctx context.Context, workerID string) (*ledger.Worker, error) {
	query := `
		SELECT worker_id, last_seen, total_sessions, is_banned
		FROM workers
		WHERE worker_id = ?
	`

	var w ledger.Worker
	err := r.db.QueryRowContext(ctx, query, workerID).Scan(
		&w.WorkerID,
		&w.LastSeen,
		&w.TotalSessions,
		&w.IsBanned,
	)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}

	return &w, nil
}

// SetBanned flips the ban flag, used by operators rather than the
// worker flow.
func (r *WorkerRepository) SetBanned(ctx context.Context, workerID string, banned bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE workers SET is_banned = ? WHERE worker_id = ?`, banned, workerID)
	if err != nil {
		return fmt.Errorf("failed to update ban flag: %w", err)
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
