package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"drill-service/internal/domain"
)

// ProgressionService owns every mutation of user progression: points,
// levels, badges, completed modules and drill results.
type ProgressionService struct {
	repo ProgressionRepository
	now  func() time.Time
	log  *zap.Logger
}

func NewProgressionService(repo ProgressionRepository, log *zap.Logger) *ProgressionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressionService{repo: repo, now: time.Now, log: log}
}

// WithClock is test-only for deterministic timestamps.
func (s *ProgressionService) WithClock(now func() time.Time) *ProgressionService {
	s.now = now
	return s
}

// EnsureUser registers userID if needed and returns its progression.
func (s *ProgressionService) EnsureUser(ctx context.Context, userID, region string) (domain.UserProgression, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.UserProgression{}, domain.Invalid("userId", "is required")
	}
	p, err := s.repo.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.UserProgression{}, err
	}

	created, err := s.repo.Create(ctx, domain.NewUserProgression(userID, strings.TrimSpace(region), s.now().UTC()))
	if errors.Is(err, domain.ErrConflict) {
		// registered concurrently
		return s.repo.Get(ctx, userID)
	}
	if err != nil {
		return domain.UserProgression{}, err
	}
	s.log.Info("user registered", zap.String("user_id", userID), zap.String("region", created.Region))
	return created, nil
}

func (s *ProgressionService) Get(ctx context.Context, userID string) (domain.UserProgression, error) {
	return s.repo.Get(ctx, userID)
}

// AddPoints adds amount and returns the resulting level. Non-positive amounts
// are a no-op.
func (s *ProgressionService) AddPoints(ctx context.Context, userID string, amount int) (domain.Level, error) {
	if amount <= 0 {
		p, err := s.repo.Get(ctx, userID)
		if err != nil {
			return domain.Level{}, err
		}
		return domain.LevelFor(p.Points), nil
	}
	p, err := s.repo.Update(ctx, userID, func(p *domain.UserProgression) error {
		p.AddPoints(amount)
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return domain.Level{}, err
	}
	return domain.LevelFor(p.Points), nil
}

// AddBadge awards code once. Unknown codes fail with domain.ErrUnknownBadge.
func (s *ProgressionService) AddBadge(ctx context.Context, userID string, code domain.BadgeCode) (domain.UserProgression, error) {
	if !code.Valid() {
		return domain.UserProgression{}, domain.ErrUnknownBadge
	}
	return s.repo.Update(ctx, userID, func(p *domain.UserProgression) error {
		added, err := p.AddBadge(code)
		if added {
			p.UpdatedAt = s.now().UTC()
		}
		return err
	})
}

// CompleteModule records a module completion for userID.
func (s *ProgressionService) CompleteModule(ctx context.Context, userID, moduleID string, score int) (domain.ModuleResult, error) {
	var res domain.ModuleResult
	_, err := s.repo.Update(ctx, userID, func(p *domain.UserProgression) error {
		var err error
		res, err = p.CompleteModule(moduleID, score, s.now().UTC())
		return err
	})
	if err != nil {
		return domain.ModuleResult{}, err
	}
	if res.FirstTime {
		s.log.Debug("module completed", zap.String("user_id", userID), zap.String("module_id", moduleID), zap.Int("score", score))
	}
	return res, nil
}

// RecordDrillResult folds a completed attempt into the owner's progression as
// one atomic update. Recording the same attempt twice is a no-op.
func (s *ProgressionService) RecordDrillResult(ctx context.Context, attempt domain.DrillAttempt) (domain.DrillReward, error) {
	var reward domain.DrillReward
	_, err := s.repo.Update(ctx, attempt.UserID, func(p *domain.UserProgression) error {
		var err error
		reward, err = p.ApplyDrillResult(attempt, s.now().UTC())
		return err
	})
	if err != nil {
		return domain.DrillReward{}, err
	}
	if reward.Duplicate {
		s.log.Warn("drill result already recorded", zap.String("attempt_id", attempt.ID))
	}
	return reward, nil
}

// Snapshots returns every progression for ranking.
func (s *ProgressionService) Snapshots(ctx context.Context) ([]domain.UserProgression, error) {
	return s.repo.List(ctx)
}
