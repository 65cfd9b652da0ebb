package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"videodocs/core"
)

// EventHook observes lifecycle changes. Called outside the manager's
// critical section is not guaranteed; hooks must be fast and must not
// call back into the manager.
type EventHook func(sess core.Session)

// Manager is the in-memory authority over live sessions. It enforces
// the status machine, detects zombies lazily on reads, and falls back
// to the durable store for sessions it no longer holds.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*core.Session

	store         Store
	zombieTimeout time.Duration
	now           func() time.Time
	hook          EventHook
}

func NewManager(store Store, zombieTimeout time.Duration) *Manager {
	return &Manager{
		sessions:      make(map[string]*core.Session),
		store:         store,
		zombieTimeout: zombieTimeout,
		now:           time.Now,
	}
}

// SetEventHook registers a lifecycle observer. Must be called before
// the manager is shared across goroutines.
func (m *Manager) SetEventHook(hook EventHook) { m.hook = hook }

func (m *Manager) emit(sess core.Session) {
	if m.hook != nil {
		m.hook(sess)
	}
}

// Create registers a session in memory and returns it. An empty id
// gets a generated one; an existing id is overwritten. Creation never
// touches the durable store.
func (m *Manager) Create(id, title, mode, modeName string) core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	now := m.now()
	sess := core.Session{
		ID:          id,
		Status:      core.StatusDraft,
		Progress:    0,
		Stage:       "created",
		Title:       title,
		Mode:        mode,
		ModeName:    modeName,
		CreatedAt:   now,
		LastUpdated: now,
		Metadata:    map[string]interface{}{},
	}
	m.sessions[sess.ID] = &sess
	m.emit(sess)
	return sess
}

// pre-work statuses callers may set before processing starts.
var preWork = map[core.SessionStatus]bool{
	core.StatusReady:       true,
	core.StatusDownloading: true,
}

// Transition moves a session between pre-work statuses. Processing is
// entered only through StartProcessing.
func (m *Manager) Transition(id string, to core.SessionStatus, stage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %s", id)
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("session %s is %s and cannot change", id, sess.Status)
	}
	if !preWork[to] {
		return fmt.Errorf("cannot transition session %s to %s", id, to)
	}
	if sess.Status == core.StatusProcessing {
		return fmt.Errorf("session %s is already processing", id)
	}
	sess.Status = to
	sess.Stage = stage
	sess.LastUpdated = m.now()
	m.emit(*sess)
	return nil
}

// StartProcessing forces a session into Processing at progress 0,
// persists the snapshot and emits a lifecycle event.
func (m *Manager) StartProcessing(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown session %s", id)
	}
	if sess.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("session %s is %s and cannot start", id, sess.Status)
	}
	sess.Status = core.StatusProcessing
	sess.Progress = 0
	sess.Stage = "processing"
	sess.LastUpdated = m.now()
	snapshot := *sess
	m.mu.Unlock()

	m.emit(snapshot)
	return m.persist(snapshot)
}

// UpdateProgress records a progress heartbeat. Progress never moves
// backwards and is clamped to [0, 100]. Updates are memory-only; the
// durable store is written at completion and failure.
func (m *Manager) UpdateProgress(id string, progress int, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok || sess.Status.Terminal() {
		return
	}
	if progress > 100 {
		progress = 100
	}
	if progress > sess.Progress {
		sess.Progress = progress
	}
	if stage != "" {
		sess.Stage = stage
	}
	sess.LastUpdated = m.now()
}

// Complete marks a session finished, merges result metadata into the
// record and persists it.
func (m *Manager) Complete(id, resultPath string, meta map[string]interface{}) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown session %s", id)
	}
	if sess.Status.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("session %s is already %s", id, sess.Status)
	}
	sess.Status = core.StatusCompleted
	sess.Progress = 100
	sess.Stage = "completed"
	sess.ResultPath = resultPath
	if sess.Metadata == nil {
		sess.Metadata = map[string]interface{}{}
	}
	for k, v := range meta {
		sess.Metadata[k] = v
	}
	sess.LastUpdated = m.now()
	snapshot := *sess
	m.mu.Unlock()

	m.emit(snapshot)
	return m.persist(snapshot)
}

// Fail marks a session failed. A session the manager has never seen is
// created on the spot so failures occurring before registration still
// leave a record. Already-terminal sessions are left untouched.
func (m *Manager) Fail(id, reason string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		now := m.now()
		sess = &core.Session{
			ID:          id,
			CreatedAt:   now,
			LastUpdated: now,
			Metadata:    map[string]interface{}{},
		}
		m.sessions[id] = sess
	}
	if sess.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}
	sess.Status = core.StatusFailed
	sess.Stage = "failed"
	sess.Error = reason
	sess.LastUpdated = m.now()
	snapshot := *sess
	m.mu.Unlock()

	m.emit(snapshot)
	return m.persist(snapshot)
}

// Cancel requests cancellation. Returns true when the session moved to
// cancelled, false when it was already terminal. Cancellation is
// advisory: running work observes the status and stops at its next
// checkpoint.
func (m *Manager) Cancel(id string) (bool, error) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("unknown session %s", id)
	}
	if sess.Status.Terminal() {
		m.mu.Unlock()
		return false, nil
	}
	sess.Status = core.StatusCancelled
	sess.Stage = "cancelled"
	sess.LastUpdated = m.now()
	snapshot := *sess
	m.mu.Unlock()

	m.emit(snapshot)
	return true, m.persist(snapshot)
}

// IsCancelled lets running pipelines poll for an advisory cancel.
func (m *Manager) IsCancelled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return ok && sess.Status == core.StatusCancelled
}

// GetStatus returns the session, consulting memory first and the
// durable store second. Store-loaded records report progress 100 for
// completed sessions and 0 otherwise, with a marker stage.
func (m *Manager) GetStatus(id string) (core.Session, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		m.reapLocked(sess)
		snapshot := *sess
		m.mu.Unlock()
		return snapshot, true
	}
	m.mu.Unlock()

	stored, found, err := m.store.Get(id)
	if err != nil {
		log.Printf("session: store lookup for %s failed: %v", id, err)
		return core.Session{}, false
	}
	if !found {
		return core.Session{}, false
	}
	if stored.Status == core.StatusCompleted {
		stored.Progress = 100
	} else {
		stored.Progress = 0
	}
	stored.Stage = "loaded_from_disk"
	return stored, true
}

// GetActive returns the most recently updated session doing work
// (Processing or Downloading), preferring live memory and falling back
// to recent store records. Drafts and parked pre-work sessions are not
// active.
func (m *Manager) GetActive() (core.Session, bool) {
	m.mu.Lock()
	var best *core.Session
	for _, sess := range m.sessions {
		m.reapLocked(sess)
		if !sess.Status.Active() {
			continue
		}
		if best == nil || sess.LastUpdated.After(best.LastUpdated) {
			best = sess
		}
	}
	if best != nil {
		snapshot := *best
		m.mu.Unlock()
		return snapshot, true
	}
	m.mu.Unlock()

	stored, err := m.store.GetAll()
	if err != nil {
		log.Printf("session: store scan failed: %v", err)
		return core.Session{}, false
	}
	cutoff := m.now().Add(-m.zombieTimeout)
	for _, sess := range stored {
		if !sess.Status.Active() {
			continue
		}
		if sess.LastUpdated.Before(cutoff) {
			continue
		}
		return sess, true
	}
	return core.Session{}, false
}

// reapLocked marks a session failed if it stopped heartbeating longer
// than the zombie timeout. Only sessions doing work can go zombie;
// drafts and parked pre-work sessions are left alone. Caller holds the
// mutex.
func (m *Manager) reapLocked(sess *core.Session) {
	if !sess.Status.Active() {
		return
	}
	if m.now().Sub(sess.LastUpdated) <= m.zombieTimeout {
		return
	}
	sess.Status = core.StatusFailed
	sess.Stage = "failed"
	sess.Error = "processing timed out"
	sess.LastUpdated = m.now()
	snapshot := *sess
	go func() {
		m.emit(snapshot)
		if err := m.persist(snapshot); err != nil {
			log.Printf("session: persisting zombie %s failed: %v", snapshot.ID, err)
		}
	}()
}

func (m *Manager) persist(sess core.Session) error {
	if err := m.store.Upsert(sess); err != nil {
		return fmt.Errorf("persisting session %s: %w", sess.ID, err)
	}
	return nil
}
