package memory

import (
	"context"
	"sync"

	"drill-service/internal/domain"
)

type drillCounters struct {
	attempts    int
	completions int
	passed      int
	scoreSum    int64
	timeSum     int64
}

// StatsRecorder keeps per-drill counters in process.
type StatsRecorder struct {
	mu     sync.Mutex
	drills map[string]*drillCounters
}

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{drills: make(map[string]*drillCounters)}
}

func (r *StatsRecorder) RecordStart(_ context.Context, drillID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters(drillID).attempts++
	return nil
}

func (r *StatsRecorder) RecordCompletion(_ context.Context, drillID string, score, timeSpent int, passed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.counters(drillID)
	c.completions++
	c.scoreSum += int64(score)
	c.timeSum += int64(timeSpent)
	if passed {
		c.passed++
	}
	return nil
}

func (r *StatsRecorder) Stats(_ context.Context, drillID string) (domain.DrillStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.counters(drillID)
	return domain.NewDrillStatistics(drillID, c.attempts, c.completions, c.passed, c.scoreSum, c.timeSum), nil
}

func (r *StatsRecorder) counters(drillID string) *drillCounters {
	c, ok := r.drills[drillID]
	if !ok {
		c = &drillCounters{}
		r.drills[drillID] = c
	}
	return c
}
