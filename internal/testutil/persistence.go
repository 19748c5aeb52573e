package testutil

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"office-affinity/internal/models"
)

// MemoryPersistence is an in-memory presence store keyed like the real ones.
type MemoryPersistence struct {
	mu       sync.Mutex
	records  map[models.PresenceKey]models.PresenceRecord
	failures []error
	appends  int
}

func NewMemoryPersistence(seed ...models.PresenceRecord) *MemoryPersistence {
	m := &MemoryPersistence{records: make(map[models.PresenceKey]models.PresenceRecord)}
	for _, r := range seed {
		m.records[r.Key()] = r.Clone()
	}
	return m
}

// FailNext queues errors for the next AppendPresence calls.
func (m *MemoryPersistence) FailNext(errs ...error) {
	m.mu.Lock()
	m.failures = append(m.failures, errs...)
	m.mu.Unlock()
}

func (m *MemoryPersistence) AppendPresence(ctx context.Context, record models.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	m.records[record.Key()] = record.Clone()
	return nil
}

func (m *MemoryPersistence) ListPresence(ctx context.Context, day civil.Date) ([]models.PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.PresenceRecord{}
	for k, r := range m.records {
		if k.Day == day {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Appends counts AppendPresence calls, failed ones included.
func (m *MemoryPersistence) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func (m *MemoryPersistence) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
