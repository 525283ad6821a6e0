package progress

import (
	"context"
	"deadkm-service/internal/domain"
	"sync"
	"time"
)

// MemoryStore keeps progress records in process memory. Records are copied
// on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Progress
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.Progress)}
}

func (s *MemoryStore) Create(ctx context.Context, p domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[p.TaskID]; ok {
		return domain.ErrTaskExists
	}
	s.records[p.TaskID] = p
	return nil
}

func (s *MemoryStore) Update(
	ctx context.Context,
	taskID string,
	fn func(p *domain.Progress) error,
) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[taskID]
	if !ok {
		return domain.Progress{}, &domain.TaskNotFoundError{TaskID: taskID}
	}

	next := cur
	if err := fn(&next); err != nil {
		return cur, err
	}
	s.records[taskID] = next
	return next, nil
}

func (s *MemoryStore) Get(ctx context.Context, taskID string) (domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.records[taskID]
	if !ok {
		return domain.Progress{}, &domain.TaskNotFoundError{TaskID: taskID}
	}
	return p, nil
}

func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, taskID)
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.records {
		if p.Expired(now) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of records held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
