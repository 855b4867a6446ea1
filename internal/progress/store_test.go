package progress_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomliptrot/handwriting-app/internal/domain/session"
	"github.com/tomliptrot/handwriting-app/internal/progress"
)

func newStore(t *testing.T) (*progress.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := progress.NewStore(dir, nil)
	require.NoError(t, err)
	return store, dir
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store, _ := newStore(t)

	started := time.Now().Add(-10 * time.Minute)
	sess := session.Session{
		WorkerID:        "worker7",
		SessionID:       "sess_worker7_1_abc",
		StartedAt:       started,
		CompletedImages: 12,
		SkippedCodes:    2,
		CurrentCode:     "#ABC12345",
		Status:          session.StatusActive,
	}
	require.NoError(t, store.Save(sess))

	snap, err := store.Load("worker7")
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, "worker7", snap.WorkerID)
	require.Equal(t, 12, snap.CompletedImages)
	require.Equal(t, 2, snap.SkippedCodes)
	require.Equal(t, "sess_worker7_1_abc", snap.SessionID)
	require.Equal(t, "#ABC12345", snap.CurrentCode)
	require.Equal(t, started.UnixMilli(), snap.SessionStartTime)
	require.NotZero(t, snap.Timestamp)
}

func TestLoad_AbsentIsNil(t *testing.T) {
	store, _ := newStore(t)
	snap, err := store.Load("nobody")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestLoad_StaleSnapshotClearedAndAbsent(t *testing.T) {
	store, dir := newStore(t)

	snap := session.Snapshot{
		WorkerID:  "worker7",
		Timestamp: time.Now().Add(-25 * time.Hour).UnixMilli(),
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	path := filepath.Join(dir, "worker7.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := store.Load("worker7")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "stale snapshot must be cleared")
}

func TestLoad_CorruptSnapshotClearedAndAbsent(t *testing.T) {
	store, dir := newStore(t)

	path := filepath.Join(dir, "worker7.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	got, err := store.Load("worker7")
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "corrupt snapshot must be cleared")
}

func TestClear_Idempotent(t *testing.T) {
	store, _ := newStore(t)

	require.NoError(t, store.Save(session.Session{WorkerID: "worker7", StartedAt: time.Now()}))
	require.NoError(t, store.Clear("worker7"))
	require.NoError(t, store.Clear("worker7"))

	snap, err := store.Load("worker7")
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestSave_OverwritesPrevious(t *testing.T) {
	store, _ := newStore(t)

	sess := session.Session{WorkerID: "worker7", StartedAt: time.Now()}
	require.NoError(t, store.Save(sess))
	sess.CompletedImages = 5
	require.NoError(t, store.Save(sess))

	snap, err := store.Load("worker7")
	require.NoError(t, err)
	require.Equal(t, 5, snap.CompletedImages)
}

func TestSweep_RemovesOldFiles(t *testing.T) {
	store, dir := newStore(t)

	old := filepath.Join(dir, "old.json")
	require.NoError(t, os.WriteFile(old, []byte("{}"), 0o644))
	past := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	fresh := filepath.Join(dir, "fresh.json")
	require.NoError(t, os.WriteFile(fresh, []byte("{}"), 0o644))

	require.NoError(t, store.Sweep())

	_, err := os.Stat(old)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	require.NoError(t, err)
}
