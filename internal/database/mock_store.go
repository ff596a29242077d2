// file: internal/database/mock_store.go
// version: 2.0.0
// guid: 5d6e7f8a-9b0c-1d2e-3f4a-5b6c7d8e9f0a

package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jdfalk/media-library/internal/models"
)

// MockStore is an in-memory Store for tests. Setting SaveErr or ListErr makes
// the corresponding calls fail.
type MockStore struct {
	mu       sync.Mutex
	nextID   int64
	entities map[int64]models.LibraryEntity
	runs     map[string]ScanRun
	saves    int

	SaveErr error
	ListErr error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		entities: make(map[int64]models.LibraryEntity),
		runs:     make(map[string]ScanRun),
	}
}

func (m *MockStore) Close() error { return nil }

func (m *MockStore) Save(ctx context.Context, entity *models.LibraryEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if entity.ID == 0 {
		m.nextID++
		entity.ID = m.nextID
	} else if _, ok := m.entities[entity.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, entity.ID)
	}
	entity.UpdatedAt = time.Now().UTC()
	m.entities[entity.ID] = *entity
	m.saves++
	return nil
}

// Saves reports how many successful Save calls were made.
func (m *MockStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MockStore) Get(ctx context.Context, id int64) (*models.LibraryEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MockStore) List(ctx context.Context, kind models.EntityKind) ([]models.LibraryEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []models.LibraryEntity
	for _, e := range m.entities {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) Upsert(ctx context.Context, entity *models.LibraryEntity) (bool, error) {
	key := NaturalKey(entity)
	m.mu.Lock()
	for _, e := range m.entities {
		if NaturalKey(&e) == key {
			*entity = e
			m.mu.Unlock()
			return false, nil
		}
	}
	m.mu.Unlock()
	entity.ID = 0
	if err := m.Save(ctx, entity); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MockStore) CountByKind(ctx context.Context) (map[models.EntityKind]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.EntityKind]int)
	for _, e := range m.entities {
		counts[e.Kind]++
	}
	return counts, nil
}

func (m *MockStore) CreateScanRun(ctx context.Context, run *ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.Status == "" {
		run.Status = ScanRunRunning
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *MockStore) FinishScanRun(ctx context.Context, run *ScanRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return fmt.Errorf("scan run %s not found", run.ID)
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *MockStore) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScanRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
