package memory

import (
	"context"
	"sync"

	"drill-service/internal/domain"
)

// ProgressionStore is an in-memory implementation of app.ProgressionRepository.
// Update holds the store lock for the whole read-modify-write.
type ProgressionStore struct {
	mu    sync.RWMutex
	users map[string]domain.UserProgression
}

func NewProgressionStore() *ProgressionStore {
	return &ProgressionStore{users: make(map[string]domain.UserProgression)}
}

func (s *ProgressionStore) Create(_ context.Context, p domain.UserProgression) (domain.UserProgression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[p.UserID]; ok {
		return domain.UserProgression{}, domain.ErrConflict
	}
	p.Version = 1
	s.users[p.UserID] = p.Clone()
	return p.Clone(), nil
}

func (s *ProgressionStore) Get(_ context.Context, userID string) (domain.UserProgression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[userID]
	if !ok {
		return domain.UserProgression{}, domain.ErrUserNotFound
	}
	return p.Clone(), nil
}

func (s *ProgressionStore) Update(_ context.Context, userID string, fn func(p *domain.UserProgression) error) (domain.UserProgression, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return domain.UserProgression{}, domain.ErrUserNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return domain.UserProgression{}, err
	}
	working.Version = current.Version + 1
	s.users[userID] = working.Clone()
	return working, nil
}

func (s *ProgressionStore) List(_ context.Context) ([]domain.UserProgression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserProgression, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, p.Clone())
	}
	return out, nil
}
