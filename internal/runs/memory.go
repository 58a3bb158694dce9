package runs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

type memoryRegistry struct {
	mu    sync.Mutex
	runs  map[string]models.RunRecord
	locks map[string]batchLock
	now   func() time.Time
}

type batchLock struct {
	token string
	until time.Time
}

// NewMemory returns a process-local registry
func NewMemory() Registry {
	return &memoryRegistry{
		runs:  make(map[string]models.RunRecord),
		locks: make(map[string]batchLock),
		now:   time.Now,
	}
}

func (m *memoryRegistry) Create(_ context.Context, run models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return apperrors.New(apperrors.KindConflict, "runs.create", fmt.Sprintf("run %s already exists", run.ID))
	}
	now := m.now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRegistry) Get(_ context.Context, id string) (models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return models.RunRecord{}, notFound("runs.get", id)
	}
	return run, nil
}

func (m *memoryRegistry) TryLockBatch(_ context.Context, id string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.locks[id]; ok && now.Before(l.until) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[id] = batchLock{token: token, until: now.Add(ttl)}
	return token, true, nil
}

func (m *memoryRegistry) UnlockBatch(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.locks[id]; ok && l.token == token {
		delete(m.locks, id)
	}
	return nil
}

func (m *memoryRegistry) AddProgress(_ context.Context, id string, processed, failed int64) (models.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return models.RunRecord{}, notFound("runs.add_progress", id)
	}
	run.Processed += processed
	run.Failed += failed
	run.UpdatedAt = m.now().UTC()
	m.runs[id] = run
	return run, nil
}

func (m *memoryRegistry) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return notFound("runs.set_status", id)
	}
	run.Status = status
	run.UpdatedAt = m.now().UTC()
	m.runs[id] = run
	return nil
}

func (m *memoryRegistry) Close() error { return nil }

func notFound(op, id string) error {
	return apperrors.New(apperrors.KindNotFound, op, fmt.Sprintf("run %s not found", id))
}
