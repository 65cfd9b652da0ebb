package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"videodocs/core"
)

// Store is the durable record of sessions, surviving restarts. The
// in-memory manager is authoritative while a session is live; the
// store is the fallback for everything else.
type Store interface {
	Upsert(sess core.Session) error
	Get(id string) (core.Session, bool, error)
	GetAll() ([]core.Session, error)
	// SaveDocumentation writes the generated document next to the
	// session record and returns its path.
	SaveDocumentation(id, doc string) (string, error)
	LoadDocumentation(id string) (string, error)
}

// FileStore keeps sessions in a single history.json under dataDir and
// each session's documentation in a markdown sidecar.
type FileStore struct {
	dataDir string
	mu      sync.Mutex
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (f *FileStore) historyPath() string {
	return filepath.Join(f.dataDir, "history.json")
}

func (f *FileStore) load() ([]core.Session, error) {
	data, err := os.ReadFile(f.historyPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var sessions []core.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return sessions, nil
}

func (f *FileStore) save(sessions []core.Session) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	tmp := f.historyPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return os.Rename(tmp, f.historyPath())
}

func (f *FileStore) Upsert(sess core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions, err := f.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range sessions {
		if sessions[i].ID == sess.ID {
			sessions[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, sess)
	}
	// Most recent first, matching how history is consumed.
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return f.save(sessions)
}

func (f *FileStore) Get(id string) (core.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions, err := f.load()
	if err != nil {
		return core.Session{}, false, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, true, nil
		}
	}
	return core.Session{}, false, nil
}

func (f *FileStore) GetAll() ([]core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) docPath(id string) string {
	return filepath.Join(f.dataDir, id, "documentation.md")
}

func (f *FileStore) SaveDocumentation(id, doc string) (string, error) {
	path := f.docPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return "", fmt.Errorf("writing documentation: %w", err)
	}
	return path, nil
}

func (f *FileStore) LoadDocumentation(id string) (string, error) {
	data, err := os.ReadFile(f.docPath(id))
	if err != nil {
		return "", fmt.Errorf("reading documentation: %w", err)
	}
	return string(data), nil
}
