package editor

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/hpungsan/tessera/internal/cms"
	"github.com/hpungsan/tessera/internal/errors"
)

// Manager keeps one session per entry id.
type Manager struct {
	entries cms.EntryStore
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager over entries.
func NewManager(entries cms.EntryStore, opts Options) *Manager {
	return &Manager{
		entries:  entries,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Session returns the loaded session for entryID, creating and loading it on
// first use. A session whose load fails is discarded so the next call retries.
func (m *Manager) Session(ctx context.Context, entryID string) (*Session, error) {
	if entryID == "" {
		return nil, errors.NewInvalidRequest("entry id is required")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.NewInvalidRequest("editor is shutting down")
	}
	s, ok := m.sessions[entryID]
	if !ok {
		s = NewSession(entryID, m.entries, m.opts)
		m.sessions[entryID] = s
	}
	m.mu.Unlock()

	if err := s.Load(ctx); err != nil {
		m.mu.Lock()
		if m.sessions[entryID] == s {
			delete(m.sessions, entryID)
		}
		m.mu.Unlock()
		s.Close()
		return nil, err
	}
	return s, nil
}

// Lookup returns an existing session without loading.
func (m *Manager) Lookup(entryID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[entryID]
	return s, ok
}

// Discard flushes and closes s and forgets it, so the next Session call reloads.
// The session is dropped even if the flush fails.
func (m *Manager) Discard(ctx context.Context, s *Session) error {
	err := s.Flush(ctx)
	s.Close()

	m.mu.Lock()
	if m.sessions[s.EntryID()] == s {
		delete(m.sessions, s.EntryID())
	}
	m.mu.Unlock()
	return err
}

// EntryIDs lists the entries with open sessions.
func (m *Manager) EntryIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FlushAll writes every pending layout and returns the joined errors.
func (m *Manager) FlushAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.snapshot() {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Close flushes and closes every session. No new sessions are created afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	err := m.FlushAll(ctx)
	for _, s := range m.snapshot() {
		s.Close()
	}

	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	return err
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
