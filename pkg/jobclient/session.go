package jobclient

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the persisted record of an in-flight job, enough to re-attach
// after a process restart.
type Session struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore persists at most one Session.
type SessionStore interface {
	Load() (*Session, bool, error)
	Save(s *Session) error
	Clear() error
}

// FileSessionStore keeps the session in a JSON file.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore creates a FileSessionStore at path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (f *FileSessionStore) Load() (*Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading session file: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt session file is treated as absent rather than fatal.
		return nil, false, nil
	}
	return &s, true, nil
}

func (f *FileSessionStore) Save(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

func (f *FileSessionStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// MemorySessionStore keeps the session in memory, for tests and short-lived
// callers.
type MemorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (m *MemorySessionStore) Load() (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, false, nil
	}
	s := *m.session
	return &s, true, nil
}

func (m *MemorySessionStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.session = &copied
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

var (
	_ SessionStore = (*FileSessionStore)(nil)
	_ SessionStore = (*MemorySessionStore)(nil)
)
