package session

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used for dev and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	tokens   map[string][]RotatedToken
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		tokens:   make(map[string][]RotatedToken),
	}
}

func (m *MemoryStore) InsertSession(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) UpdateSessionStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Status = status
		m.sessions[id] = s
	}
	return nil
}

func (m *MemoryStore) SaveToken(_ context.Context, tok RotatedToken, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	toks := append(m.tokens[tok.SessionID], tok)
	if keep > 0 && len(toks) > keep {
		toks = toks[len(toks)-keep:]
	}
	m.tokens[tok.SessionID] = toks
	if s, ok := m.sessions[tok.SessionID]; ok && s.CurrentSequence < tok.Sequence {
		s.CurrentSequence = tok.Sequence
		m.sessions[tok.SessionID] = s
	}
	return nil
}

func (m *MemoryStore) IncrementPresent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.PresentCount++
		m.sessions[id] = s
	}
	return nil
}

// Tokens returns the retained ledger rows for a session.
func (m *MemoryStore) Tokens(sessionID string) []RotatedToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RotatedToken, len(m.tokens[sessionID]))
	copy(out, m.tokens[sessionID])
	return out
}

// Session returns the persisted row, if any.
func (m *MemoryStore) Session(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// MemoryClassDirectory is a fixed roster for dev and tests.
type MemoryClassDirectory struct {
	mu      sync.Mutex
	classes map[string]ClassInfo
}

// NewMemoryClassDirectory creates an empty roster.
func NewMemoryClassDirectory() *MemoryClassDirectory {
	return &MemoryClassDirectory{classes: make(map[string]ClassInfo)}
}

// Put registers a class snapshot.
func (d *MemoryClassDirectory) Put(info ClassInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[info.Ref] = info
}

func (d *MemoryClassDirectory) GetClass(_ context.Context, ref string) (ClassInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info, ok := d.classes[ref]; ok {
		return info, nil
	}
	return ClassInfo{Ref: ref}, nil
}
