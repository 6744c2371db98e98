package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"drill-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// Values are cloned on the way in and out so callers never share slices.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.DrillAttempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]domain.DrillAttempt)}
}

func (s *AttemptStore) Create(_ context.Context, a domain.DrillAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[a.ID]; ok {
		return fmt.Errorf("attempt %s exists: %w", a.ID, domain.ErrConflict)
	}
	for _, other := range s.attempts {
		if other.UserID == a.UserID && other.DrillID == a.DrillID && other.AttemptNumber == a.AttemptNumber {
			return fmt.Errorf("attempt number %d taken: %w", a.AttemptNumber, domain.ErrConflict)
		}
	}
	a.Version = 1
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.DrillAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.DrillAttempt{}, domain.ErrAttemptNotFound
	}
	return a.Clone(), nil
}

func (s *AttemptStore) Save(_ context.Context, a domain.DrillAttempt) (domain.DrillAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[a.ID]
	if !ok {
		return domain.DrillAttempt{}, domain.ErrAttemptNotFound
	}
	if current.Version != a.Version {
		return domain.DrillAttempt{}, domain.ErrConflict
	}
	a.Version++
	s.attempts[a.ID] = a.Clone()
	return a.Clone(), nil
}

func (s *AttemptStore) CountByUserDrill(_ context.Context, userID, drillID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID && a.DrillID == drillID {
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) ListByDrill(_ context.Context, drillID string) ([]domain.DrillAttempt, error) {
	return s.filter(func(a domain.DrillAttempt) bool { return a.DrillID == drillID }), nil
}

func (s *AttemptStore) ListByUser(_ context.Context, userID string) ([]domain.DrillAttempt, error) {
	return s.filter(func(a domain.DrillAttempt) bool { return a.UserID == userID }), nil
}

func (s *AttemptStore) ListInProgress(_ context.Context, startedBefore time.Time) ([]domain.DrillAttempt, error) {
	return s.filter(func(a domain.DrillAttempt) bool {
		return a.Status == domain.AttemptInProgress && a.StartedAt.Before(startedBefore)
	}), nil
}

func (s *AttemptStore) filter(keep func(domain.DrillAttempt) bool) []domain.DrillAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DrillAttempt, 0)
	for _, a := range s.attempts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}
