package app

import (
	"context"
	"time"

	"drill-service/internal/domain"
)

// LeaderboardService derives rankings, analytics and history from stored
// attempts and progressions. It never mutates them.
type LeaderboardService struct {
	attempts     AttemptRepository
	progressions ProgressionRepository
	stats        DrillStatsRecorder
	now          func() time.Time
}

func NewLeaderboardService(attempts AttemptRepository, progressions ProgressionRepository, stats DrillStatsRecorder) *LeaderboardService {
	if stats == nil {
		stats = noopStats{}
	}
	return &LeaderboardService{attempts: attempts, progressions: progressions, stats: stats, now: time.Now}
}

// TopByPoints ranks users by cumulative points, optionally within one region.
func (s *LeaderboardService) TopByPoints(ctx context.Context, region string, limit int) (domain.PointsLeaderboard, error) {
	snapshots, err := s.progressions.List(ctx)
	if err != nil {
		return domain.PointsLeaderboard{}, err
	}
	return domain.PointsLeaderboard{
		Region:    region,
		Entries:   domain.RankByPoints(snapshots, region, limit),
		UpdatedAt: s.now().UTC(),
	}, nil
}

// TopByDrillScore ranks users by their best completed score on drillID.
func (s *LeaderboardService) TopByDrillScore(ctx context.Context, drillID string, limit int) (domain.DrillLeaderboard, error) {
	attempts, err := s.attempts.ListByDrill(ctx, drillID)
	if err != nil {
		return domain.DrillLeaderboard{}, err
	}
	return domain.DrillLeaderboard{
		DrillID:   drillID,
		Entries:   domain.RankByDrillScore(attempts, drillID, limit),
		UpdatedAt: s.now().UTC(),
	}, nil
}

// DrillReport combines attempt analytics with the running drill counters.
type DrillReport struct {
	Analytics  domain.DrillAnalytics  `json:"analytics"`
	Statistics domain.DrillStatistics `json:"statistics"`
}

func (s *LeaderboardService) Analytics(ctx context.Context, drillID string) (DrillReport, error) {
	attempts, err := s.attempts.ListByDrill(ctx, drillID)
	if err != nil {
		return DrillReport{}, err
	}
	stats, err := s.stats.Stats(ctx, drillID)
	if err != nil {
		return DrillReport{}, err
	}
	return DrillReport{Analytics: domain.AnalyzeDrill(attempts, drillID), Statistics: stats}, nil
}

// History returns userID's attempts, newest first.
func (s *LeaderboardService) History(ctx context.Context, userID string, limit int) ([]domain.AttemptView, error) {
	attempts, err := s.attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	domain.SortNewestFirst(attempts)
	limit = domain.NormalizeLimit(limit, domain.DefaultHistoryLimit)
	if len(attempts) > limit {
		attempts = attempts[:limit]
	}
	views := make([]domain.AttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, a.View())
	}
	return views, nil
}

// BestScores returns userID's personal record per drill.
func (s *LeaderboardService) BestScores(ctx context.Context, userID string) ([]domain.BestScore, error) {
	attempts, err := s.attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.BestScoresByDrill(attempts), nil
}
