package app

import (
	"context"
	"errors"
	"time"

	"drill-service/internal/domain"
)

// DefinitionRepository loads drill definitions (from cache/backing store).
type DefinitionRepository interface {
	GetDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error)
}

// DefinitionCache is a DefinitionRepository that can drop stale entries.
type DefinitionCache interface {
	DefinitionRepository
	Invalidate(ctx context.Context, drillID string) error
}

// DefinitionStore is the authoritative store for authored drills.
type DefinitionStore interface {
	LoadDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error)
	ListDrills(ctx context.Context) ([]domain.DrillDefinition, error)
	SaveDrill(ctx context.Context, def domain.DrillDefinition) error
}

// AttemptRepository persists drill attempts. Save must reject a stale
// Version with domain.ErrConflict and bump the version on success.
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.DrillAttempt) error
	Get(ctx context.Context, attemptID string) (domain.DrillAttempt, error)
	Save(ctx context.Context, attempt domain.DrillAttempt) (domain.DrillAttempt, error)
	CountByUserDrill(ctx context.Context, userID, drillID string) (int, error)
	ListByDrill(ctx context.Context, drillID string) ([]domain.DrillAttempt, error)
	ListByUser(ctx context.Context, userID string) ([]domain.DrillAttempt, error)
	ListInProgress(ctx context.Context, startedBefore time.Time) ([]domain.DrillAttempt, error)
}

// ProgressionRepository persists user progressions. Update runs fn as an
// atomic read-modify-write for one user; if fn fails nothing is written.
type ProgressionRepository interface {
	Create(ctx context.Context, p domain.UserProgression) (domain.UserProgression, error)
	Get(ctx context.Context, userID string) (domain.UserProgression, error)
	Update(ctx context.Context, userID string, fn func(p *domain.UserProgression) error) (domain.UserProgression, error)
	List(ctx context.Context) ([]domain.UserProgression, error)
}

// Locker provides mutual exclusion keyed by an arbitrary string.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Publisher delivers attempt lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// DrillStatsRecorder keeps per-drill aggregate counters.
type DrillStatsRecorder interface {
	RecordStart(ctx context.Context, drillID string) error
	RecordCompletion(ctx context.Context, drillID string, score, timeSpent int, passed bool) error
	Stats(ctx context.Context, drillID string) (domain.DrillStatistics, error)
}

// MetricsRecorder receives engine instrumentation.
type MetricsRecorder interface {
	AttemptStarted(drillType domain.DrillType)
	ResponseRecorded(drillType domain.DrillType, correct bool)
	AttemptFinished(drillType domain.DrillType, outcome domain.EventType, score int)
}

// FanoutPublisher sends each event to every publisher and joins the errors.
type FanoutPublisher []Publisher

func (f FanoutPublisher) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Event) error { return nil }

type noopStats struct{}

func (noopStats) RecordStart(context.Context, string) error { return nil }
func (noopStats) RecordCompletion(context.Context, string, int, int, bool) error {
	return nil
}
func (noopStats) Stats(_ context.Context, drillID string) (domain.DrillStatistics, error) {
	return domain.DrillStatistics{DrillID: drillID}, nil
}

type noopMetrics struct{}

func (noopMetrics) AttemptStarted(domain.DrillType)                        {}
func (noopMetrics) ResponseRecorded(domain.DrillType, bool)                {}
func (noopMetrics) AttemptFinished(domain.DrillType, domain.EventType, int) {}
