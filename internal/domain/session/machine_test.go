package session_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomliptrot/handwriting-app/internal/domain/session"
	"github.com/tomliptrot/handwriting-app/internal/ledger"
)

type fakeCodes struct{ n int }

func (f *fakeCodes) Generate() string {
	f.n++
	return fmt.Sprintf("#AAA%05d", f.n)
}

type fakeStore struct {
	saves   []session.Session
	cleared int
}

func (f *fakeStore) Save(sess session.Session) error { f.saves = append(f.saves, sess); return nil }
func (f *fakeStore) Load(string) (*session.Snapshot, error) { return nil, nil }
func (f *fakeStore) Clear(string) error              { f.cleared++; return nil }

type fakeLedger struct {
	worker    *ledger.Worker
	started   []ledger.SessionRecord
	generated []string
	skipped   []string
	uploaded  []string
	completed int
}

func (f *fakeLedger) LookupWorker(context.Context, string) *ledger.Worker { return f.worker }
func (f *fakeLedger) SessionStarted(_ context.Context, rec ledger.SessionRecord) {
	f.started = append(f.started, rec)
}
func (f *fakeLedger) CodeGenerated(_ context.Context, _, _, codeValue string) {
	f.generated = append(f.generated, codeValue)
}
func (f *fakeLedger) ImageUploaded(_ context.Context, _, codeValue, _, _ string, _ int) {
	f.uploaded = append(f.uploaded, codeValue)
}
func (f *fakeLedger) CodeSkipped(_ context.Context, _, codeValue string) {
	f.skipped = append(f.skipped, codeValue)
}
func (f *fakeLedger) SessionCompleted(context.Context, string, int, int, time.Duration) {
	f.completed++
}

type fakeUploader struct {
	err   error
	calls int
}

func (f *fakeUploader) Upload(_ context.Context, _ session.File, sess session.Session) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "images/" + sess.WorkerID + "/" + sess.CurrentCode[1:] + ".jpg", nil
}

type fakeNotifier struct {
	summaries []session.CompletionSummary
}

func (f *fakeNotifier) Notify(_ context.Context, s session.CompletionSummary) {
	f.summaries = append(f.summaries, s)
}

type fixture struct {
	machine  *session.Machine
	codes    *fakeCodes
	store    *fakeStore
	ledger   *fakeLedger
	uploader *fakeUploader
	notifier *fakeNotifier
}

func newFixture(t *testing.T, target int, opts ...func(*session.Settings)) *fixture {
	t.Helper()
	settings := session.Settings{
		TargetImages:    target,
		MaxFileSize:     5 * 1024 * 1024,
		AllowedTypes:    []string{"image/jpeg", "image/png", "image/webp"},
		WorkerIDPattern: regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`),
		AllowSkipping:   true,
		TrackTiming:     true,
	}
	for _, opt := range opts {
		opt(&settings)
	}
	f := &fixture{
		codes:    &fakeCodes{},
		store:    &fakeStore{},
		ledger:   &fakeLedger{},
		uploader: &fakeUploader{},
		notifier: &fakeNotifier{},
	}
	f.machine = session.NewMachine(settings, f.codes, f.store, f.uploader, f.ledger, f.notifier, nil)
	return f
}

func jpeg() session.File {
	return session.File{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte("fake image bytes")}
}

func TestStartSession_ValidWorkerIDs(t *testing.T) {
	for _, id := range []string{"abc", "worker7", "ABC123xyz", "a1b2c3d4e5f6g7h8i9j0"} {
		f := newFixture(t, 3)
		sess, err := f.machine.StartSession(context.Background(), id)
		require.NoError(t, err, id)
		require.Equal(t, session.StateActive, f.machine.State())
		require.Regexp(t, `^#[A-Z]{3}[0-9]{5}$|^#AAA[0-9]{5}$`, sess.CurrentCode)
		require.Equal(t, id, sess.WorkerID)
		require.NotEmpty(t, sess.SessionID)
		require.Len(t, f.store.saves, 1)
		require.Len(t, f.ledger.started, 1)
	}
}

func TestStartSession_TrimsWhitespace(t *testing.T) {
	f := newFixture(t, 3)
	sess, err := f.machine.StartSession(context.Background(), "  worker7  ")
	require.NoError(t, err)
	require.Equal(t, "worker7", sess.WorkerID)
}

func TestStartSession_InvalidWorkerIDs(t *testing.T) {
	for _, id := range []string{"", "ab", "way-too-long-for-the-allowed-range", "has space", "semi;colon", "worker_7"} {
		f := newFixture(t, 3)
		_, err := f.machine.StartSession(context.Background(), id)
		require.ErrorIs(t, err, session.ErrInvalidWorkerID, id)
		require.Equal(t, session.StateNoSession, f.machine.State())
		require.Empty(t, f.store.saves)
		require.Empty(t, f.ledger.started)
	}
}

func TestStartSession_BannedWorker(t *testing.T) {
	f := newFixture(t, 3)
	f.ledger.worker = &ledger.Worker{WorkerID: "worker7", IsBanned: true}

	_, err := f.machine.StartSession(context.Background(), "worker7")
	require.ErrorIs(t, err, session.ErrWorkerBanned)
	require.Equal(t, session.StateNoSession, f.machine.State())
	require.Empty(t, f.ledger.started)
}

func TestStartSession_KnownWorkerNotBanned(t *testing.T) {
	f := newFixture(t, 3)
	f.ledger.worker = &ledger.Worker{WorkerID: "worker7", TotalSessions: 4}

	_, err := f.machine.StartSession(context.Background(), "worker7")
	require.NoError(t, err)
	require.Equal(t, session.StateActive, f.machine.State())
}

func TestSkipCurrentCode_Accounting(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	seen := map[string]bool{f.machine.Session().CurrentCode: true}
	for i := 0; i < 3; i++ {
		sess, err := f.machine.SkipCurrentCode(ctx)
		require.NoError(t, err)
		require.False(t, seen[sess.CurrentCode], "skip must issue a distinct code")
		seen[sess.CurrentCode] = true
	}

	sess := f.machine.Session()
	require.Equal(t, 3, sess.SkippedCodes)
	require.Len(t, f.ledger.skipped, 3)
	require.Empty(t, f.ledger.uploaded, "skipped codes are never completed")
	// 1 initial + 3 replacements generated.
	require.Len(t, f.ledger.generated, 4)
}

func TestSkipCurrentCode_DisabledIsNoOp(t *testing.T) {
	f := newFixture(t, 3, func(s *session.Settings) { s.AllowSkipping = false })
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	before := f.machine.Session()
	after, err := f.machine.SkipCurrentCode(ctx)
	require.NoError(t, err)
	require.Equal(t, before.CurrentCode, after.CurrentCode)
	require.Zero(t, after.SkippedCodes)
	require.Empty(t, f.ledger.skipped)
}

func TestSkipCurrentCode_RequiresActive(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.machine.SkipCurrentCode(context.Background())
	require.ErrorIs(t, err, session.ErrNotActive)
}

func TestBeginUpload_RejectsWrongType(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	before := f.machine.Session()
	_, err = f.machine.BeginUpload(ctx, session.File{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("x")})
	require.ErrorIs(t, err, session.ErrInvalidFile)
	require.Equal(t, session.StateActive, f.machine.State())
	require.Equal(t, before, f.machine.Session())
	require.Zero(t, f.uploader.calls)
}

func TestBeginUpload_RejectsOversizedFile(t *testing.T) {
	f := newFixture(t, 3, func(s *session.Settings) { s.MaxFileSize = 4 })
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.ErrorIs(t, err, session.ErrFileTooLarge)
	require.Equal(t, session.StateActive, f.machine.State())
	require.Zero(t, f.uploader.calls)
}

func TestBeginUpload_FailureDoesNotAdvance(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	pending := f.machine.Session().CurrentCode
	f.uploader.err = errors.New("network unreachable")

	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.Error(t, err)

	sess := f.machine.Session()
	require.Equal(t, session.StateActive, f.machine.State())
	require.Equal(t, pending, sess.CurrentCode, "same code stays pending after a failed upload")
	require.Zero(t, sess.CompletedImages)
	require.Empty(t, f.ledger.uploaded)
}

func TestBeginUpload_RetryAfterFailureSucceeds(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	f.uploader.err = errors.New("network unreachable")
	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.Error(t, err)

	f.uploader.err = nil
	key, err := f.machine.BeginUpload(ctx, jpeg())
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.Equal(t, 1, f.machine.Session().CompletedImages)
}

func TestCompletionThreshold(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.Equal(t, session.StateActive, f.machine.State())
		_, err := f.machine.BeginUpload(ctx, jpeg())
		require.NoError(t, err)
	}

	require.Equal(t, session.StateCompleted, f.machine.State())
	sess := f.machine.Session()
	require.Equal(t, 3, sess.CompletedImages)
	require.Equal(t, session.StatusCompleted, sess.Status)
	require.Equal(t, 1, f.store.cleared, "snapshot cleared on completion")
	require.Equal(t, 1, f.ledger.completed)

	require.Len(t, f.notifier.summaries, 1)
	summary := f.notifier.summaries[0]
	require.Equal(t, "worker7", summary.WorkerID)
	require.Equal(t, 3, summary.CompletedImages)
	require.Regexp(t, `^COMP-KER7-03-[A-Z0-9]+$`, summary.CompletionCode)

	got := f.machine.Summary()
	require.NotNil(t, got)
	require.Equal(t, summary.CompletionCode, got.CompletionCode)
}

func TestCompleted_RejectsFurtherActions(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)
	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.NoError(t, err)

	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.ErrorIs(t, err, session.ErrNotActive)
	_, err = f.machine.SkipCurrentCode(ctx)
	require.ErrorIs(t, err, session.ErrNotActive)
}

// After any mix of skips and uploads, exactly one generated code is
// unresolved unless the session completed.
func TestSingleUnresolvedCodeInvariant(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	steps := []string{"skip", "upload", "skip", "upload", "skip", "upload", "upload", "upload"}
	for _, step := range steps {
		if step == "skip" {
			_, err := f.machine.SkipCurrentCode(ctx)
			require.NoError(t, err)
		} else {
			_, err := f.machine.BeginUpload(ctx, jpeg())
			require.NoError(t, err)
		}

		resolved := len(f.ledger.skipped) + len(f.ledger.uploaded)
		unresolved := len(f.ledger.generated) - resolved
		if f.machine.State() == session.StateCompleted {
			require.Zero(t, unresolved)
		} else {
			require.Equal(t, 1, unresolved)
		}
	}
	require.Equal(t, session.StateCompleted, f.machine.State())
}

func TestResume_RestoresSessionVerbatim(t *testing.T) {
	f := newFixture(t, 30)
	started := time.Now().Add(-time.Hour)
	snap := session.Snapshot{
		WorkerID:         "worker7",
		CompletedImages:  12,
		SkippedCodes:     2,
		SessionStartTime: started.UnixMilli(),
		SessionID:        "sess_worker7_1_abc",
		CurrentCode:      "#XYZ98765",
		Timestamp:        time.Now().Add(-time.Hour).UnixMilli(),
	}

	sess, err := f.machine.Resume(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, session.StateActive, f.machine.State())
	require.Equal(t, "worker7", sess.WorkerID)
	require.Equal(t, 12, sess.CompletedImages)
	require.Equal(t, 2, sess.SkippedCodes)
	require.Equal(t, "#XYZ98765", sess.CurrentCode, "restored code stays pending")
	require.Zero(t, f.codes.n, "resume must not generate a new code")
}

func TestResume_StaleSnapshotRejected(t *testing.T) {
	f := newFixture(t, 30)
	snap := session.Snapshot{
		WorkerID:  "worker7",
		Timestamp: time.Now().Add(-25 * time.Hour).UnixMilli(),
	}

	_, err := f.machine.Resume(context.Background(), snap)
	require.ErrorIs(t, err, session.ErrSnapshotStale)
	require.Equal(t, session.StateNoSession, f.machine.State())
}

func TestResume_AlreadyCompleteRerunsCompletion(t *testing.T) {
	f := newFixture(t, 3)
	snap := session.Snapshot{
		WorkerID:         "worker7",
		CompletedImages:  3,
		SessionStartTime: time.Now().Add(-time.Hour).UnixMilli(),
		SessionID:        "sess_worker7_1_abc",
		Timestamp:        time.Now().UnixMilli(),
	}

	_, err := f.machine.Resume(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, session.StateCompleted, f.machine.State())
	require.Len(t, f.notifier.summaries, 1)
	require.Equal(t, 1, f.ledger.completed)
	require.Equal(t, 1, f.store.cleared)
}

func TestResume_RequiresNoSession(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)

	_, err = f.machine.Resume(ctx, session.Snapshot{Timestamp: time.Now().UnixMilli()})
	require.ErrorIs(t, err, session.ErrSessionExists)
}

func TestIncomplete(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.False(t, f.machine.Incomplete())

	_, err := f.machine.StartSession(ctx, "worker7")
	require.NoError(t, err)
	require.False(t, f.machine.Incomplete())

	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.NoError(t, err)
	require.True(t, f.machine.Incomplete())

	_, err = f.machine.BeginUpload(ctx, jpeg())
	require.NoError(t, err)
	require.False(t, f.machine.Incomplete())
}
