// Package progress persists session snapshots outside the running
// process so an interrupted session can be resumed.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/domain/session"
)

// RetentionWindow is how long snapshot files are physically kept.
// Logical staleness for acceptance is session.SnapshotMaxAge (24h);
// anything older is treated as absent on load regardless of retention.
const RetentionWindow = 7 * 24 * time.Hour

// Store keeps one snapshot file per worker. Save, Load and Clear are
// idempotent and have no side effects beyond the store itself.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a snapshot store under dir.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create progress dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save serializes the session with a write timestamp.
func (s *Store) Save(sess session.Session) error {
	snap := session.Snapshot{
		WorkerID:         sess.WorkerID,
		CompletedImages:  sess.CompletedImages,
		SkippedCodes:     sess.SkippedCodes,
		SessionStartTime: sess.StartedAt.UnixMilli(),
		SessionID:        sess.SessionID,
		CurrentCode:      sess.CurrentCode,
		Timestamp:        time.Now().UnixMilli(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	path := s.path(sess.WorkerID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns the worker's snapshot, or nil when absent. A snapshot
// that fails to parse or is older than 24 hours is cleared and
// reported absent; neither case is an error.
func (s *Store) Load(workerID string) (*session.Snapshot, error) {
	data, err := os.ReadFile(s.path(workerID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("corrupt progress snapshot cleared", "worker_id", workerID, "error", err)
		return nil, s.Clear(workerID)
	}

	if time.Since(time.UnixMilli(snap.Timestamp)) > session.SnapshotMaxAge {
		return nil, s.Clear(workerID)
	}

	return &snap, nil
}

// Clear removes the worker's snapshot unconditionally.
func (s *Store) Clear(workerID string) error {
	if err := os.Remove(s.path(workerID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Sweep deletes snapshot files past the retention window. Run at
// startup; logical expiry on Load covers the rest.
func (s *Store) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read progress dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > RetentionWindow {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				s.logger.Warn("failed to sweep snapshot", "file", entry.Name(), "error", err)
			}
		}
	}
	return nil
}

// path maps a worker ID to its snapshot file. Worker IDs are
// alphanumeric by the time they reach the store, but strip anything
// unexpected rather than trust it in a filename.
func (s *Store) path(workerID string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, workerID)
	return filepath.Join(s.dir, clean+".json")
}
