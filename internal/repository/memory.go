package repository

import (
	"sort"
	"sync"

	"cidermill-sync-server/internal/domain"
)

// Memory-backed repositories for tests and ephemeral deployments. Values are
// deep-copied on the way in and out so callers never share mutable state with
// the store.

type memoryDraftRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.PressRun
}

func NewMemoryDraftRepository() DraftRepository {
	return &memoryDraftRepository{runs: make(map[string]*domain.PressRun)}
}

func (r *memoryDraftRepository) Put(run *domain.PressRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run.Clone()
	return nil
}

func (r *memoryDraftRepository) Get(id string) (*domain.PressRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

func (r *memoryDraftRepository) List() ([]*domain.PressRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runs := make([]*domain.PressRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run.Clone())
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

func (r *memoryDraftRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[id]; !ok {
		return ErrNotFound
	}
	delete(r.runs, id)
	return nil
}

type memoryQueueRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.QueueItem
}

func NewMemoryQueueRepository() QueueRepository {
	return &memoryQueueRepository{items: make(map[string]*domain.QueueItem)}
}

func (r *memoryQueueRepository) Put(item *domain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *item
	r.items[item.ID] = &c
	return nil
}

func (r *memoryQueueRepository) Get(id string) (*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *item
	return &c, nil
}

func (r *memoryQueueRepository) List() ([]*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]*domain.QueueItem, 0, len(r.items))
	for _, item := range r.items {
		c := *item
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (r *memoryQueueRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memoryQueueRepository) DeleteAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]*domain.QueueItem)
	return nil
}

type memoryConflictRepository struct {
	mu        sync.RWMutex
	conflicts map[string]*domain.Conflict
}

func NewMemoryConflictRepository() ConflictRepository {
	return &memoryConflictRepository{conflicts: make(map[string]*domain.Conflict)}
}

func (r *memoryConflictRepository) Put(conflict *domain.Conflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *conflict
	r.conflicts[conflict.ID] = &c
	return nil
}

func (r *memoryConflictRepository) Get(id string) (*domain.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conflict, ok := r.conflicts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conflict
	return &c, nil
}

func (r *memoryConflictRepository) List() ([]*domain.Conflict, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conflicts := make([]*domain.Conflict, 0, len(r.conflicts))
	for _, conflict := range r.conflicts {
		c := *conflict
		conflicts = append(conflicts, &c)
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].DetectedAt.Equal(conflicts[j].DetectedAt) {
			return conflicts[i].ID < conflicts[j].ID
		}
		return conflicts[i].DetectedAt.Before(conflicts[j].DetectedAt)
	})
	return conflicts, nil
}

func (r *memoryConflictRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conflicts[id]; !ok {
		return ErrNotFound
	}
	delete(r.conflicts, id)
	return nil
}
