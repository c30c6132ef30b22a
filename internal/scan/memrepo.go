package scan

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryRepository is the in-process record store used for dev and tests.
// Insert is atomic under the mutex, matching the uniqueness guarantee of the
// Postgres index.
type MemoryRepository struct {
	mu      sync.Mutex
	byPair  map[string]Record
	byID    map[string]Record
	reviews []ReviewItem
	devices map[string]time.Time
}

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byPair:  make(map[string]Record),
		byID:    make(map[string]Record),
		devices: make(map[string]time.Time),
	}
}

func pairKey(sessionID, subjectID string) string {
	return sessionID + "|" + subjectID
}

func (m *MemoryRepository) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(rec.SessionID, rec.SubjectID)
	if _, ok := m.byPair[key]; ok {
		return ErrAlreadyRecorded
	}
	m.byPair[key] = rec
	m.byID[rec.ID] = rec
	return nil
}

func (m *MemoryRepository) Exists(_ context.Context, sessionID, subjectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPair[pairKey(sessionID, subjectID)]
	return ok, nil
}

func (m *MemoryRepository) GetRecord(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, errors.New("record not found")
	}
	return rec, nil
}

func (m *MemoryRepository) InsertReviewItem(_ context.Context, item ReviewItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews = append(m.reviews, item)
	return nil
}

// ReviewItems returns queued review items.
func (m *MemoryRepository) ReviewItems() []ReviewItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReviewItem, len(m.reviews))
	copy(out, m.reviews)
	return out
}

func (m *MemoryRepository) UpsertDevice(_ context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[deviceID]; !ok {
		m.devices[deviceID] = time.Now().UTC()
	}
	return nil
}

func (m *MemoryRepository) SaveRefreshToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

// Count returns the number of stored records.
func (m *MemoryRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byPair)
}
