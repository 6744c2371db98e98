package domain

import (
	"cmp"
	"slices"
	"time"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	DefaultHistoryLimit     = 20
)

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxLeaderboardLimit)
}

// PointsEntry is one row of the points leaderboard.
type PointsEntry struct {
	Rank            int       `json:"rank"`
	UserID          string    `json:"userId"`
	Region          string    `json:"region,omitempty"`
	Points          int       `json:"points"`
	Level           Level     `json:"level"`
	Badges          int       `json:"badges"`
	DrillsCompleted int       `json:"drillsCompleted"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PointsLeaderboard is the ordered points ranking.
type PointsLeaderboard struct {
	Region    string        `json:"region,omitempty"`
	Entries   []PointsEntry `json:"entries"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// RankByPoints orders progressions by points desc, earlier registration first
// on ties. An empty region keeps everyone.
func RankByPoints(snapshots []UserProgression, region string, limit int) []PointsEntry {
	limit = NormalizeLimit(limit, DefaultLeaderboardLimit)

	filtered := make([]UserProgression, 0, len(snapshots))
	for _, p := range snapshots {
		if region != "" && p.Region != region {
			continue
		}
		filtered = append(filtered, p)
	}

	slices.SortStableFunc(filtered, func(a, b UserProgression) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	entries := make([]PointsEntry, 0, min(limit, len(filtered)))
	for i, p := range filtered {
		if i >= limit {
			break
		}
		entries = append(entries, PointsEntry{
			Rank:            i + 1,
			UserID:          p.UserID,
			Region:          p.Region,
			Points:          p.Points,
			Level:           LevelFor(p.Points),
			Badges:          len(p.Badges),
			DrillsCompleted: p.DrillsCompleted,
			CreatedAt:       p.CreatedAt,
		})
	}
	return entries
}

// DrillScoreEntry is one row of a per-drill leaderboard.
type DrillScoreEntry struct {
	Rank          int       `json:"rank"`
	UserID        string    `json:"userId"`
	BestScore     int       `json:"bestScore"`
	BestTime      int       `json:"bestTime"`
	TotalAttempts int       `json:"totalAttempts"`
	LastAttemptAt time.Time `json:"lastAttempt"`
}

// DrillLeaderboard is the ranking for one drill.
type DrillLeaderboard struct {
	DrillID   string            `json:"drillId"`
	Entries   []DrillScoreEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RankByDrillScore groups completed attempts of drillID by user, keeps each
// user's best score (lower time wins a tie) and sorts best first.
func RankByDrillScore(attempts []DrillAttempt, drillID string, limit int) []DrillScoreEntry {
	limit = NormalizeLimit(limit, DefaultLeaderboardLimit)

	best := make(map[string]*DrillScoreEntry)
	for _, a := range attempts {
		if a.DrillID != drillID || a.Status != AttemptCompleted {
			continue
		}
		finished := a.StartedAt
		if a.CompletedAt != nil {
			finished = *a.CompletedAt
		}
		e, ok := best[a.UserID]
		if !ok {
			best[a.UserID] = &DrillScoreEntry{
				UserID:        a.UserID,
				BestScore:     a.Score,
				BestTime:      a.TotalTimeSpent,
				TotalAttempts: 1,
				LastAttemptAt: finished,
			}
			continue
		}
		e.TotalAttempts++
		if finished.After(e.LastAttemptAt) {
			e.LastAttemptAt = finished
		}
		if a.Score > e.BestScore || (a.Score == e.BestScore && a.TotalTimeSpent < e.BestTime) {
			e.BestScore = a.Score
			e.BestTime = a.TotalTimeSpent
		}
	}

	entries := make([]DrillScoreEntry, 0, len(best))
	for _, e := range best {
		entries = append(entries, *e)
	}
	slices.SortFunc(entries, func(a, b DrillScoreEntry) int {
		if c := cmp.Compare(b.BestScore, a.BestScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.BestTime, b.BestTime); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// DrillAnalytics summarizes every attempt of one drill.
type DrillAnalytics struct {
	DrillID           string  `json:"drillId"`
	TotalAttempts     int     `json:"totalAttempts"`
	CompletedAttempts int     `json:"completedAttempts"`
	PassedAttempts    int     `json:"passedAttempts"`
	AbandonedAttempts int     `json:"abandonedAttempts"`
	AverageScore      float64 `json:"avgScore"`
	AverageTime       float64 `json:"avgTime"`
	MaxScore          int     `json:"maxScore"`
	MinScore          int     `json:"minScore"`
	CompletionRate    float64 `json:"completionRate"`
	PassRate          float64 `json:"passRate"`
}

// AnalyzeDrill aggregates attempts of drillID. Rates are percentages and are
// zero when their denominator is zero.
func AnalyzeDrill(attempts []DrillAttempt, drillID string) DrillAnalytics {
	out := DrillAnalytics{DrillID: drillID}
	var scoreSum, timeSum int
	for _, a := range attempts {
		if a.DrillID != drillID {
			continue
		}
		out.TotalAttempts++
		switch a.Status {
		case AttemptAbandoned:
			out.AbandonedAttempts++
		case AttemptCompleted:
			if out.CompletedAttempts == 0 {
				out.MaxScore, out.MinScore = a.Score, a.Score
			}
			out.CompletedAttempts++
			scoreSum += a.Score
			timeSum += a.TotalTimeSpent
			out.MaxScore = max(out.MaxScore, a.Score)
			out.MinScore = min(out.MinScore, a.Score)
			if a.Passed {
				out.PassedAttempts++
			}
		}
	}
	if out.CompletedAttempts > 0 {
		out.AverageScore = float64(scoreSum) / float64(out.CompletedAttempts)
		out.AverageTime = float64(timeSum) / float64(out.CompletedAttempts)
		out.PassRate = float64(out.PassedAttempts) / float64(out.CompletedAttempts) * 100
	}
	if out.TotalAttempts > 0 {
		out.CompletionRate = float64(out.CompletedAttempts) / float64(out.TotalAttempts) * 100
	}
	return out
}

// BestScore is a user's personal record on one drill.
type BestScore struct {
	DrillID       string    `json:"drillId"`
	DrillType     DrillType `json:"drillType"`
	BestScore     int       `json:"bestScore"`
	AttemptCount  int       `json:"attemptCount"`
	AverageScore  float64   `json:"avgScore"`
	LastCompleted time.Time `json:"lastCompleted"`
}

// BestScoresByDrill builds a user's personal records from their completed
// attempts, highest best score first.
func BestScoresByDrill(attempts []DrillAttempt) []BestScore {
	type acc struct {
		BestScore
		sum int
	}
	byDrill := make(map[string]*acc)
	for _, a := range attempts {
		if a.Status != AttemptCompleted {
			continue
		}
		finished := a.StartedAt
		if a.CompletedAt != nil {
			finished = *a.CompletedAt
		}
		e, ok := byDrill[a.DrillID]
		if !ok {
			e = &acc{BestScore: BestScore{DrillID: a.DrillID, DrillType: a.DrillType, BestScore: a.Score}}
			byDrill[a.DrillID] = e
		}
		e.AttemptCount++
		e.sum += a.Score
		e.BestScore.BestScore = max(e.BestScore.BestScore, a.Score)
		if finished.After(e.LastCompleted) {
			e.LastCompleted = finished
		}
	}

	out := make([]BestScore, 0, len(byDrill))
	for _, e := range byDrill {
		e.AverageScore = float64(e.sum) / float64(e.AttemptCount)
		out = append(out, e.BestScore)
	}
	slices.SortFunc(out, func(a, b BestScore) int {
		if c := cmp.Compare(b.BestScore, a.BestScore); c != 0 {
			return c
		}
		return cmp.Compare(a.DrillID, b.DrillID)
	})
	return out
}

// SortNewestFirst orders attempts by start time, most recent first.
func SortNewestFirst(attempts []DrillAttempt) {
	slices.SortStableFunc(attempts, func(a, b DrillAttempt) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
}
