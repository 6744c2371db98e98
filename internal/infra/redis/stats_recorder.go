package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"drill-service/internal/domain"
)

const (
	fieldAttempts    = "attempts"
	fieldCompletions = "completions"
	fieldPassed      = "passed"
	fieldScoreSum    = "score_sum"
	fieldTimeSum     = "time_sum"
)

// StatsRecorder keeps drill counters in a hash shared by every instance:
// HINCRBY drill:{drillID}:stats {field} {n}
type StatsRecorder struct {
	client *redis.Client
}

func NewStatsRecorder(client *redis.Client) *StatsRecorder {
	return &StatsRecorder{client: client}
}

func (r *StatsRecorder) RecordStart(ctx context.Context, drillID string) error {
	return r.client.HIncrBy(ctx, statsKey(drillID), fieldAttempts, 1).Err()
}

func (r *StatsRecorder) RecordCompletion(ctx context.Context, drillID string, score, timeSpent int, passed bool) error {
	key := statsKey(drillID)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldCompletions, 1)
	pipe.HIncrBy(ctx, key, fieldScoreSum, int64(score))
	pipe.HIncrBy(ctx, key, fieldTimeSum, int64(timeSpent))
	if passed {
		pipe.HIncrBy(ctx, key, fieldPassed, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record completion for %s: %w", drillID, err)
	}
	return nil
}

func (r *StatsRecorder) Stats(ctx context.Context, drillID string) (domain.DrillStatistics, error) {
	values, err := r.client.HGetAll(ctx, statsKey(drillID)).Result()
	if err != nil && !isMiss(err) {
		return domain.DrillStatistics{}, fmt.Errorf("load stats for %s: %w", drillID, err)
	}
	return domain.NewDrillStatistics(drillID,
		int(counter(values, fieldAttempts)),
		int(counter(values, fieldCompletions)),
		int(counter(values, fieldPassed)),
		counter(values, fieldScoreSum),
		counter(values, fieldTimeSum),
	), nil
}

func statsKey(drillID string) string {
	return "drill:" + drillID + ":stats"
}

func counter(values map[string]string, field string) int64 {
	n, err := strconv.ParseInt(values[field], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
