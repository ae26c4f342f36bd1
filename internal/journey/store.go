package journey

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("journey not found")

// Record is the persisted form of one player's journey.
type Record struct {
	ID          string
	DisplayName string
	StateJSON   []byte
	UpdatedAt   time.Time
}

type Store interface {
	Load(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, r Record) error
	Delete(ctx context.Context, id string) error
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() Store {
	return &memoryStore{records: map[string]Record{}}
}

func (m *memoryStore) Load(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	r.StateJSON = append([]byte(nil), r.StateJSON...)
	return r, nil
}

func (m *memoryStore) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.StateJSON = append([]byte(nil), r.StateJSON...)
	m.records[r.ID] = r
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}
