package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videodocs/core"
)

func newTestManager(t *testing.T) (*Manager, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewManager(store, 10*time.Minute), store
}

func TestLifecycleCreateToFail(t *testing.T) {
	m, store := newTestManager(t)

	sess := m.Create("", "demo", "general_doc", "General Documentation")
	assert.Equal(t, core.StatusDraft, sess.Status)

	require.NoError(t, m.StartProcessing(sess.ID))
	m.UpdateProgress(sess.ID, 40, "transcribing")

	require.NoError(t, m.Fail(sess.ID, "boom"))

	got, ok := m.GetStatus(sess.ID)
	require.True(t, ok)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, 40, got.Progress)

	// Failure is persisted.
	stored, found, err := store.Get(sess.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.StatusFailed, stored.Status)
}

func TestProgressMonotonicAndClamped(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))

	m.UpdateProgress(sess.ID, 50, "half")
	m.UpdateProgress(sess.ID, 30, "earlier stage reported late")
	m.UpdateProgress(sess.ID, 150, "overflow")

	got, _ := m.GetStatus(sess.ID)
	assert.Equal(t, 100, got.Progress)

	m2, _ := newTestManager(t)
	sess2 := m2.Create("", "demo", "general_doc", "")
	m2.UpdateProgress(sess2.ID, 50, "half")
	m2.UpdateProgress(sess2.ID, 30, "late")
	got2, _ := m2.GetStatus(sess2.ID)
	assert.Equal(t, 50, got2.Progress)
	assert.Equal(t, "late", got2.Stage)
}

func TestTransitionRules(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Create("", "demo", "general_doc", "")

	require.NoError(t, m.Transition(sess.ID, core.StatusReady, "waiting for upload"))
	require.NoError(t, m.Transition(sess.ID, core.StatusDownloading, "fetching"))
	require.NoError(t, m.StartProcessing(sess.ID))

	// Processing cannot go back to downloading.
	assert.Error(t, m.Transition(sess.ID, core.StatusDownloading, "again"))
}

func TestTerminalStatesAbsorb(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))
	require.NoError(t, m.Complete(sess.ID, "/data/x/documentation.md", nil))

	assert.Error(t, m.Transition(sess.ID, core.StatusProcessing, "again"))
	assert.Error(t, m.Complete(sess.ID, "elsewhere", nil))
	require.NoError(t, m.Fail(sess.ID, "too late"))

	got, _ := m.GetStatus(sess.ID)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Empty(t, got.Error)

	m.UpdateProgress(sess.ID, 10, "ghost update")
	got, _ = m.GetStatus(sess.ID)
	assert.Equal(t, 100, got.Progress)
}

func TestCancelIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))

	changed, err := m.Cancel(sess.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, m.IsCancelled(sess.ID))

	changed, err = m.Cancel(sess.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = m.Cancel("no-such-session")
	assert.Error(t, err)
}

func TestFailUnknownSessionAutoVivifies(t *testing.T) {
	m, store := newTestManager(t)

	require.NoError(t, m.Fail("orphan-id", "crashed before registration"))

	got, ok := m.GetStatus("orphan-id")
	require.True(t, ok)
	assert.Equal(t, core.StatusFailed, got.Status)

	stored, found, err := store.Get("orphan-id")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "crashed before registration", stored.Error)
}

func TestZombieDetectionOnRead(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))
	m.UpdateProgress(sess.ID, 40, "transcribing")

	// 11 minutes of silence crosses the 10 minute timeout.
	m.now = func() time.Time { return base.Add(11 * time.Minute) }

	got, ok := m.GetStatus(sess.ID)
	require.True(t, ok)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Equal(t, "processing timed out", got.Error)

	// The marking sticks on subsequent reads.
	got, _ = m.GetStatus(sess.ID)
	assert.Equal(t, core.StatusFailed, got.Status)
}

func TestZombieNotReapedWhileHeartbeating(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))

	m.now = func() time.Time { return base.Add(9 * time.Minute) }
	m.UpdateProgress(sess.ID, 70, "synthesizing")

	m.now = func() time.Time { return base.Add(15 * time.Minute) }
	got, _ := m.GetStatus(sess.ID)
	assert.Equal(t, core.StatusProcessing, got.Status)
}

func TestGetStatusFallsBackToStore(t *testing.T) {
	m, store := newTestManager(t)
	require.NoError(t, store.Upsert(core.Session{
		ID: "done", Status: core.StatusCompleted, Progress: 42, Stage: "whatever",
		CreatedAt: time.Now(), LastUpdated: time.Now(),
	}))
	require.NoError(t, store.Upsert(core.Session{
		ID: "failed", Status: core.StatusFailed, Progress: 42,
		CreatedAt: time.Now(), LastUpdated: time.Now(),
	}))

	got, ok := m.GetStatus("done")
	require.True(t, ok)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "loaded_from_disk", got.Stage)

	got, ok = m.GetStatus("failed")
	require.True(t, ok)
	assert.Equal(t, 0, got.Progress)

	_, ok = m.GetStatus("missing")
	assert.False(t, ok)
}

func TestGetActivePrefersMemory(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	old := m.Create("", "old", "general_doc", "")
	require.NoError(t, m.StartProcessing(old.ID))

	m.now = func() time.Time { return base.Add(time.Minute) }
	fresh := m.Create("", "fresh", "general_doc", "")
	require.NoError(t, m.StartProcessing(fresh.ID))

	got, ok := m.GetActive()
	require.True(t, ok)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestGetActiveStoreFallbackSkipsStale(t *testing.T) {
	m, store := newTestManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	require.NoError(t, store.Upsert(core.Session{
		ID: "stale", Status: core.StatusProcessing,
		CreatedAt: base.Add(-time.Hour), LastUpdated: base.Add(-time.Hour),
	}))
	require.NoError(t, store.Upsert(core.Session{
		ID: "terminal", Status: core.StatusCompleted,
		CreatedAt: base, LastUpdated: base,
	}))

	_, ok := m.GetActive()
	assert.False(t, ok)

	require.NoError(t, store.Upsert(core.Session{
		ID: "recent", Status: core.StatusProcessing,
		CreatedAt: base.Add(-time.Minute), LastUpdated: base.Add(-time.Minute),
	}))
	got, ok := m.GetActive()
	require.True(t, ok)
	assert.Equal(t, "recent", got.ID)
}

func TestGetActiveIgnoresSessionsNotDoingWork(t *testing.T) {
	m, store := newTestManager(t)

	m.Create("", "draft only", "general_doc", "")
	parked := m.Create("", "parked", "general_doc", "")
	require.NoError(t, m.Transition(parked.ID, core.StatusReady, "waiting"))

	_, ok := m.GetActive()
	assert.False(t, ok)

	// A pre-work record in the store is not active either.
	require.NoError(t, store.Upsert(core.Session{
		ID: "stored-ready", Status: core.StatusReady,
		CreatedAt: time.Now(), LastUpdated: time.Now(),
	}))
	_, ok = m.GetActive()
	assert.False(t, ok)

	running := m.Create("", "running", "general_doc", "")
	require.NoError(t, m.StartProcessing(running.ID))
	got, ok := m.GetActive()
	require.True(t, ok)
	assert.Equal(t, running.ID, got.ID)
}

func TestZombieReapSkipsPreWorkSessions(t *testing.T) {
	m, _ := newTestManager(t)
	base := time.Now()
	m.now = func() time.Time { return base }

	sess := m.Create("", "parked", "general_doc", "")
	require.NoError(t, m.Transition(sess.ID, core.StatusReady, "waiting"))

	// Parked sessions can sit past the timeout without being failed.
	m.now = func() time.Time { return base.Add(11 * time.Minute) }
	got, ok := m.GetStatus(sess.ID)
	require.True(t, ok)
	assert.Equal(t, core.StatusReady, got.Status)
	assert.Empty(t, got.Error)
}

func TestCompleteMergesMetadata(t *testing.T) {
	m, store := newTestManager(t)
	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))
	require.NoError(t, m.Complete(sess.ID, "/data/x/documentation.md", map[string]interface{}{
		"stt_provider": "whisper-api",
		"frames_count": 12,
		"transcript":   "what was said",
	}))

	got, ok := m.GetStatus(sess.ID)
	require.True(t, ok)
	assert.Equal(t, "whisper-api", got.Metadata["stt_provider"])
	assert.Equal(t, "what was said", got.Metadata["transcript"])
	assert.Equal(t, "/data/x/documentation.md", got.ResultPath)

	stored, found, err := store.Get(sess.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, core.StatusCompleted, stored.Status)
}

func TestEventHookObservesLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	var statuses []core.SessionStatus
	m.SetEventHook(func(sess core.Session) {
		statuses = append(statuses, sess.Status)
	})

	sess := m.Create("", "demo", "general_doc", "")
	require.NoError(t, m.StartProcessing(sess.ID))
	require.NoError(t, m.Complete(sess.ID, "path", nil))

	assert.Equal(t, []core.SessionStatus{
		core.StatusDraft, core.StatusProcessing, core.StatusCompleted,
	}, statuses)
}
