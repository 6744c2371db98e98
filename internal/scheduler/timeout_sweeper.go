// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSpec = "@every 30s"

// Expirer finishes in-progress attempts whose time budget has run out.
type Expirer interface {
	TimeoutExpired(ctx context.Context, grace time.Duration) (int, error)
}

// TimeoutSweeper periodically times out abandoned in-progress attempts.
type TimeoutSweeper struct {
	expirer Expirer
	spec    string
	grace   time.Duration
	log     *zap.Logger
}

func NewTimeoutSweeper(expirer Expirer, spec string, grace time.Duration, log *zap.Logger) *TimeoutSweeper {
	if spec == "" {
		spec = DefaultSpec
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TimeoutSweeper{expirer: expirer, spec: spec, grace: grace, log: log}
}

// Sweep runs one pass and returns how many attempts were timed out.
func (s *TimeoutSweeper) Sweep(ctx context.Context) int {
	n, err := s.expirer.TimeoutExpired(ctx, s.grace)
	if err != nil {
		s.log.Error("timeout sweep failed", zap.Int("timed_out", n), zap.Error(err))
		return n
	}
	if n > 0 {
		s.log.Info("timed out expired attempts", zap.Int("count", n))
	}
	return n
}

// Run schedules Sweep and blocks until ctx is cancelled. Overlapping runs
// are skipped.
func (s *TimeoutSweeper) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule timeout sweep %q: %w", s.spec, err)
	}

	c.Start()
	s.log.Info("timeout sweeper started", zap.String("spec", s.spec), zap.Duration("grace", s.grace))
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("timeout sweeper stopped")
	return nil
}
