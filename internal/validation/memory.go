package validation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/streamwatch/internal/core/domain"
)

// MemoryCommandStore is an in-process StatusStore and Locker for redis-less
// runs. Statuses never expire; the process is the scope.
type MemoryCommandStore struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]*domain.CommandStatus
	locks    map[string]bool
}

// NewMemoryCommandStore creates an empty in-process command store.
func NewMemoryCommandStore() *MemoryCommandStore {
	return &MemoryCommandStore{
		statuses: make(map[uuid.UUID]*domain.CommandStatus),
		locks:    make(map[string]bool),
	}
}

func (s *MemoryCommandStore) SaveCommandStatus(ctx context.Context, status *domain.CommandStatus, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *status
	s.statuses[status.CommandID] = &cp
	return nil
}

func (s *MemoryCommandStore) GetCommandStatus(ctx context.Context, commandID uuid.UUID) (*domain.CommandStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[commandID]
	if !ok {
		return nil, nil
	}
	cp := *status
	return &cp, nil
}

func (s *MemoryCommandStore) AcquireCommandLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[name] {
		return false, nil
	}
	s.locks[name] = true
	return true, nil
}

func (s *MemoryCommandStore) ReleaseCommandLock(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, name)
	return nil
}
