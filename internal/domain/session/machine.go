package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tomliptrot/handwriting-app/internal/domain/code"
	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

// SnapshotMaxAge is how old a persisted snapshot may be before it is
// treated as absent.
const SnapshotMaxAge = 24 * time.Hour

// Settings holds the validated collection knobs the machine enforces.
type Settings struct {
	TargetImages    int
	MaxFileSize     int64
	AllowedTypes    []string
	WorkerIDPattern *regexp.Regexp
	AllowSkipping   bool
	TrackTiming     bool
}

// Machine owns the live Session value and decides every transition:
// NoSession -> Active -> Uploading -> Active ... -> Completed.
// All collaborators are called from here and never call back in.
type Machine struct {
	settings Settings
	codes    CodeSource
	store    ProgressStore
	uploader Uploader
	ledger   Ledger
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	sess    Session
	summary *CompletionSummary
}

// NewMachine creates a machine in the NoSession state.
func NewMachine(
	settings Settings,
	codes CodeSource,
	store ProgressStore,
	uploader Uploader,
	led Ledger,
	notifier Notifier,
	logger *slog.Logger,
) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		settings: settings,
		codes:    codes,
		store:    store,
		uploader: uploader,
		ledger:   led,
		notifier: notifier,
		logger:   logger,
		state:    StateNoSession,
	}
}

// State returns the current machine state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the current session value.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Summary returns the completion summary, or nil before completion.
func (m *Machine) Summary() *CompletionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return nil
	}
	s := *m.summary
	return &s
}

// Incomplete reports whether leaving now would lose progress: some
// images uploaded but the target not yet reached.
func (m *Machine) Incomplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.CompletedImages > 0 && m.sess.CompletedImages < m.settings.TargetImages
}

// StartSession validates the worker ID, checks the ban flag and opens
// a fresh session with its first code. Ledger writes are best effort;
// validation and the ban check happen before any state change.
func (m *Machine) StartSession(ctx context.Context, rawWorkerID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateNoSession {
		return Session{}, ErrSessionExists
	}

	workerID := strings.TrimSpace(rawWorkerID)
	if !m.settings.WorkerIDPattern.MatchString(workerID) {
		return Session{}, ErrInvalidWorkerID
	}

	if w := m.ledger.LookupWorker(ctx, workerID); w != nil && w.IsBanned {
		return Session{}, ErrWorkerBanned
	}

	now := time.Now()
	m.sess = Session{
		WorkerID:  workerID,
		SessionID: newSessionID(workerID, now),
		StartedAt: now,
		Status:    StatusActive,
	}
	m.state = StateActive

	m.ledger.SessionStarted(ctx, ledger.SessionRecord{
		SessionID:    m.sess.SessionID,
		WorkerID:     workerID,
		StartedAt:    now,
		TargetImages: m.settings.TargetImages,
		Status:       ledger.SessionActive,
	})

	m.generateCode(ctx)
	m.saveSnapshot()

	return m.sess, nil
}

// SkipCurrentCode retires the current code without an upload and
// issues a new one. Silently ignored when skipping is disabled.
func (m *Machine) SkipCurrentCode(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return Session{}, ErrNotActive
	}
	if !m.settings.AllowSkipping {
		return m.sess, nil
	}

	m.sess.SkippedCodes++
	m.ledger.CodeSkipped(ctx, m.sess.SessionID, m.sess.CurrentCode)
	m.saveSnapshot()
	m.generateCode(ctx)

	return m.sess, nil
}

// BeginUpload validates the file, transitions to Uploading and runs
// the pipeline. Being in Uploading rejects further uploads, so only
// one is ever in flight. Validation failures mutate nothing.
func (m *Machine) BeginUpload(ctx context.Context, file File) (string, error) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return "", ErrNotActive
	}
	if !m.typeAllowed(file.ContentType) {
		m.mu.Unlock()
		return "", ErrInvalidFile
	}
	if int64(len(file.Data)) > m.settings.MaxFileSize {
		m.mu.Unlock()
		return "", ErrFileTooLarge
	}
	m.state = StateUploading
	sess := m.sess
	m.mu.Unlock()

	key, err := m.uploader.Upload(ctx, file, sess)
	if err != nil {
		m.OnUploadFailed(ctx, err)
		return "", err
	}

	m.OnUploadSucceeded(ctx, key, code.Filename(sess.CurrentCode))
	return key, nil
}

// OnUploadSucceeded records the completed code, advances progress and
// either issues the next code or completes the session.
func (m *Machine) OnUploadSucceeded(ctx context.Context, storageKey, filename string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	completedCode := m.sess.CurrentCode
	m.sess.CompletedImages++
	m.ledger.ImageUploaded(ctx, m.sess.SessionID, completedCode, filename, storageKey, m.sess.CompletedImages)
	m.saveSnapshot()

	if m.sess.CompletedImages >= m.settings.TargetImages {
		m.complete(ctx)
		return
	}

	m.state = StateActive
	m.generateCode(ctx)
}

// OnUploadFailed reverts to Active with the same pending code. No
// counters move and nothing is written; the next attempt reuses the
// current code.
func (m *Machine) OnUploadFailed(ctx context.Context, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUploading {
		m.state = StateActive
	}
	m.logger.Warn("upload failed",
		"session_id", m.sess.SessionID,
		"code", m.sess.CurrentCode,
		"error", err)
}

// Resume restores a session from a persisted snapshot. Snapshots older
// than SnapshotMaxAge are treated as absent. The restored current code
// stays pending; no new code is generated. A snapshot that already
// meets the target completes immediately, re-running completion side
// effects.
func (m *Machine) Resume(ctx context.Context, snap Snapshot) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateNoSession {
		return Session{}, ErrSessionExists
	}
	if time.Since(time.UnixMilli(snap.Timestamp)) > SnapshotMaxAge {
		return Session{}, ErrSnapshotStale
	}

	m.sess = Session{
		WorkerID:        snap.WorkerID,
		SessionID:       snap.SessionID,
		StartedAt:       time.UnixMilli(snap.SessionStartTime),
		CompletedImages: snap.CompletedImages,
		SkippedCodes:    snap.SkippedCodes,
		CurrentCode:     snap.CurrentCode,
		Status:          StatusActive,
	}

	if m.sess.CompletedImages >= m.settings.TargetImages {
		m.complete(ctx)
	} else {
		m.state = StateActive
	}

	return m.sess, nil
}

// generateCode issues a fresh code as the single unresolved code of
// the session. Callers hold the lock.
func (m *Machine) generateCode(ctx context.Context) {
	m.sess.CurrentCode = m.codes.Generate()
	m.ledger.CodeGenerated(ctx, m.sess.SessionID, m.sess.WorkerID, m.sess.CurrentCode)
}

// complete finishes the session: ledger completion write, summary,
// notification, snapshot cleared. Callers hold the lock.
func (m *Machine) complete(ctx context.Context) {
	now := time.Now()
	m.state = StateCompleted
	m.sess.Status = StatusCompleted
	m.sess.CurrentCode = ""

	durationSeconds := 0
	if m.settings.TrackTiming {
		durationSeconds = int(now.Sub(m.sess.StartedAt).Seconds())
	}

	m.ledger.SessionCompleted(ctx, m.sess.SessionID,
		m.sess.CompletedImages, m.sess.SkippedCodes,
		time.Duration(durationSeconds)*time.Second)

	summary := CompletionSummary{
		WorkerID:        m.sess.WorkerID,
		CompletedImages: m.sess.CompletedImages,
		DurationSeconds: durationSeconds,
		SkippedCodes:    m.sess.SkippedCodes,
		CompletionCode:  code.CompletionCode(m.sess.WorkerID, m.sess.CompletedImages, now),
		StartedAt:       m.sess.StartedAt,
	}
	m.summary = &summary

	m.notifier.Notify(ctx, summary)

	if err := m.store.Clear(m.sess.WorkerID); err != nil {
		m.logger.Warn("failed to clear progress snapshot", "worker_id", m.sess.WorkerID, "error", err)
	}
}

func (m *Machine) saveSnapshot() {
	if err := m.store.Save(m.sess); err != nil {
		m.logger.Warn("failed to save progress snapshot", "worker_id", m.sess.WorkerID, "error", err)
	}
}

func (m *Machine) typeAllowed(contentType string) bool {
	for _, t := range m.settings.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

func newSessionID(workerID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("sess_%s_%d_%s", workerID, now.UnixMilli(), suffix)
}
