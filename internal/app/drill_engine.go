package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"drill-service/internal/domain"
)

// DrillEngine drives users through drill attempts: start, respond, then
// complete, abandon or time out. Every mutation of one attempt runs under a
// lock keyed by the attempt id.
type DrillEngine struct {
	defs        DefinitionRepository
	attempts    AttemptRepository
	progression *ProgressionService
	locker      Locker

	publisher Publisher
	stats     DrillStatsRecorder
	metrics   MetricsRecorder
	now       func() time.Time
	newID     func() string
	log       *zap.Logger
}

// EngineOption customizes a DrillEngine.
type EngineOption func(*DrillEngine)

func WithPublisher(p Publisher) EngineOption {
	return func(e *DrillEngine) { e.publisher = p }
}

func WithStats(s DrillStatsRecorder) EngineOption {
	return func(e *DrillEngine) { e.stats = s }
}

func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *DrillEngine) { e.metrics = m }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *DrillEngine) { e.log = l }
}

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *DrillEngine) { e.now = now }
}

// WithIDGenerator overrides attempt id generation.
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *DrillEngine) { e.newID = gen }
}

func NewDrillEngine(defs DefinitionRepository, attempts AttemptRepository, progression *ProgressionService, locker Locker, opts ...EngineOption) *DrillEngine {
	e := &DrillEngine{
		defs:        defs,
		attempts:    attempts,
		progression: progression,
		locker:      locker,
		publisher:   noopPublisher{},
		stats:       noopStats{},
		metrics:     noopMetrics{},
		now:         time.Now,
		newID:       uuid.NewString,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartResult is what a caller needs to run the attempt. Scenarios never
// carry correctness, points or feedback.
type StartResult struct {
	AttemptID     string                  `json:"attemptId"`
	DrillID       string                  `json:"drillId"`
	AttemptNumber int                     `json:"attemptNumber"`
	MaxAttempts   int                     `json:"maxAttempts"`
	PassingScore  int                     `json:"passingScore"`
	Scenarios     []domain.PublicScenario `json:"scenarios"`
	StartedAt     time.Time               `json:"startedAt"`
}

// CompletionResult is a finalized attempt together with what it earned.
type CompletionResult struct {
	Attempt domain.DrillAttempt
	Reward  domain.DrillReward
}

// Start opens the next attempt of drillID for userID.
func (e *DrillEngine) Start(ctx context.Context, userID, drillID string) (StartResult, error) {
	if err := requireUser(userID); err != nil {
		return StartResult{}, err
	}
	if _, err := e.progression.Get(ctx, userID); err != nil {
		return StartResult{}, err
	}
	def, err := e.defs.GetDrill(ctx, drillID)
	if err != nil {
		return StartResult{}, err
	}
	if def.Archived {
		return StartResult{}, domain.ErrDrillNotFound
	}

	unlock, err := e.locker.Lock(ctx, startLockKey(userID, drillID))
	if err != nil {
		return StartResult{}, err
	}
	defer unlock()

	prior, err := e.attempts.CountByUserDrill(ctx, userID, drillID)
	if err != nil {
		return StartResult{}, fmt.Errorf("count attempts: %w", err)
	}
	if prior >= def.MaxAttempts {
		return StartResult{}, &domain.AttemptLimitError{Max: def.MaxAttempts}
	}

	now := e.now().UTC()
	attempt := domain.NewAttempt(e.newID(), userID, def, prior+1, now)
	if err := e.attempts.Create(ctx, attempt); err != nil {
		return StartResult{}, fmt.Errorf("create attempt: %w", err)
	}

	if err := e.stats.RecordStart(ctx, drillID); err != nil {
		e.log.Warn("record drill start", zap.String("drill_id", drillID), zap.Error(err))
	}
	e.metrics.AttemptStarted(def.Type)
	e.publish(ctx, domain.NewAttemptEvent(domain.EventAttemptStarted, attempt, now))
	e.log.Debug("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("user_id", userID),
		zap.String("drill_id", drillID),
		zap.Int("attempt_number", attempt.AttemptNumber),
	)

	return StartResult{
		AttemptID:     attempt.ID,
		DrillID:       def.ID,
		AttemptNumber: attempt.AttemptNumber,
		MaxAttempts:   def.MaxAttempts,
		PassingScore:  def.PassingScore,
		Scenarios:     domain.PublicScenarios(attempt.Scenarios),
		StartedAt:     now,
	}, nil
}

// Respond records the answer to the current scenario. It never completes the
// attempt, even on the last scenario.
func (e *DrillEngine) Respond(ctx context.Context, userID, attemptID string, scenarioIndex, selectedOption, timeSpent int) (domain.ResponseOutcome, error) {
	unlock, err := e.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return domain.ResponseOutcome{}, err
	}
	defer unlock()

	attempt, err := e.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return domain.ResponseOutcome{}, err
	}
	out, err := attempt.Respond(scenarioIndex, selectedOption, timeSpent, e.now().UTC())
	if err != nil {
		return domain.ResponseOutcome{}, err
	}
	if _, err := e.attempts.Save(ctx, attempt); err != nil {
		return domain.ResponseOutcome{}, fmt.Errorf("save attempt: %w", err)
	}
	e.metrics.ResponseRecorded(attempt.DrillType, out.IsCorrect)
	return out, nil
}

// Complete finalizes the attempt and records the result in the owner's
// progression. Completing an attempt that is already completed but whose
// result never reached the progression pays the reward now; otherwise it
// fails with domain.ErrInvalidState.
func (e *DrillEngine) Complete(ctx context.Context, userID, attemptID string) (CompletionResult, error) {
	if err := requireUser(userID); err != nil {
		return CompletionResult{}, err
	}
	return e.finish(ctx, userID, attemptID, domain.ReasonSubmitted)
}

// Timeout finalizes the attempt with the responses collected so far.
func (e *DrillEngine) Timeout(ctx context.Context, userID, attemptID string) (CompletionResult, error) {
	if err := requireUser(userID); err != nil {
		return CompletionResult{}, err
	}
	return e.finish(ctx, userID, attemptID, domain.ReasonTimeout)
}

// timeoutAny is Timeout without the ownership check, for the sweeper.
func (e *DrillEngine) timeoutAny(ctx context.Context, attemptID string) (CompletionResult, error) {
	return e.finish(ctx, "", attemptID, domain.ReasonTimeout)
}

func (e *DrillEngine) finish(ctx context.Context, userID, attemptID string, reason domain.CompletionReason) (CompletionResult, error) {
	unlock, err := e.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return CompletionResult{}, err
	}
	defer unlock()

	attempt, err := e.load(ctx, userID, attemptID)
	if err != nil {
		return CompletionResult{}, err
	}
	if attempt.Status == domain.AttemptCompleted {
		return e.settle(ctx, attempt)
	}

	if err := attempt.Complete(e.now().UTC(), reason); err != nil {
		return CompletionResult{}, err
	}
	// The attempt is saved before progression: a failed save leaves nothing
	// paid, and a failed progression write is settled by the next Complete.
	saved, err := e.attempts.Save(ctx, attempt)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("save attempt: %w", err)
	}
	return e.reward(ctx, saved)
}

// settle pays a completed attempt that was never recorded in progression.
func (e *DrillEngine) settle(ctx context.Context, attempt domain.DrillAttempt) (CompletionResult, error) {
	p, err := e.progression.Get(ctx, attempt.UserID)
	if err != nil {
		return CompletionResult{}, err
	}
	if slices.Contains(p.RecordedAttempts, attempt.ID) {
		return CompletionResult{}, domain.ErrInvalidState
	}
	e.log.Info("settling unrecorded attempt", zap.String("attempt_id", attempt.ID))
	return e.reward(ctx, attempt)
}

func (e *DrillEngine) reward(ctx context.Context, saved domain.DrillAttempt) (CompletionResult, error) {
	reward, err := e.progression.RecordDrillResult(ctx, saved)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("record drill result: %w", err)
	}

	if err := e.stats.RecordCompletion(ctx, saved.DrillID, saved.Score, saved.TotalTimeSpent, saved.Passed); err != nil {
		e.log.Warn("record drill completion", zap.String("drill_id", saved.DrillID), zap.Error(err))
	}
	eventType := domain.EventAttemptCompleted
	if saved.CompletionReason == domain.ReasonTimeout {
		eventType = domain.EventAttemptTimedOut
	}
	e.metrics.AttemptFinished(saved.DrillType, eventType, saved.Score)
	event := domain.NewAttemptEvent(eventType, saved, e.now().UTC())
	event.PointsAwarded = reward.PointsAwarded
	event.NewBadges = reward.NewBadges
	e.publish(ctx, event)

	e.log.Info("attempt finished",
		zap.String("attempt_id", saved.ID),
		zap.String("user_id", saved.UserID),
		zap.String("drill_id", saved.DrillID),
		zap.String("reason", string(saved.CompletionReason)),
		zap.Int("score", saved.Score),
		zap.Bool("passed", saved.Passed),
	)
	return CompletionResult{Attempt: saved, Reward: reward}, nil
}

// Abandon ends the attempt without scoring or rewards.
func (e *DrillEngine) Abandon(ctx context.Context, userID, attemptID string) (domain.DrillAttempt, error) {
	unlock, err := e.locker.Lock(ctx, attemptLockKey(attemptID))
	if err != nil {
		return domain.DrillAttempt{}, err
	}
	defer unlock()

	attempt, err := e.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return domain.DrillAttempt{}, err
	}
	now := e.now().UTC()
	if err := attempt.Abandon(now); err != nil {
		return domain.DrillAttempt{}, err
	}
	saved, err := e.attempts.Save(ctx, attempt)
	if err != nil {
		return domain.DrillAttempt{}, fmt.Errorf("save attempt: %w", err)
	}
	e.metrics.AttemptFinished(saved.DrillType, domain.EventAttemptAbandoned, 0)
	e.publish(ctx, domain.NewAttemptEvent(domain.EventAttemptAbandoned, saved, now))
	return saved, nil
}

// Get returns an attempt owned by userID.
func (e *DrillEngine) Get(ctx context.Context, userID, attemptID string) (domain.DrillAttempt, error) {
	return e.loadOwned(ctx, userID, attemptID)
}

// TimeoutExpired finalizes every in-progress attempt whose deadline plus
// grace has passed. It returns how many attempts were timed out.
func (e *DrillEngine) TimeoutExpired(ctx context.Context, grace time.Duration) (int, error) {
	now := e.now().UTC()
	candidates, err := e.attempts.ListInProgress(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list in-progress attempts: %w", err)
	}

	var (
		n    int
		errs []error
	)
	for _, a := range candidates {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if !a.Deadline(grace).Before(now) {
			continue
		}
		_, err := e.timeoutAny(ctx, a.ID)
		switch {
		case err == nil:
			n++
		case errors.Is(err, domain.ErrInvalidState):
			// finished by its owner meanwhile
		default:
			errs = append(errs, fmt.Errorf("attempt %s: %w", a.ID, err))
		}
	}
	return n, errors.Join(errs...)
}

func (e *DrillEngine) loadOwned(ctx context.Context, userID, attemptID string) (domain.DrillAttempt, error) {
	if err := requireUser(userID); err != nil {
		return domain.DrillAttempt{}, err
	}
	return e.load(ctx, userID, attemptID)
}

// load fetches an attempt; an empty userID skips the ownership check.
func (e *DrillEngine) load(ctx context.Context, userID, attemptID string) (domain.DrillAttempt, error) {
	attempt, err := e.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.DrillAttempt{}, err
	}
	if userID != "" && attempt.UserID != userID {
		return domain.DrillAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (e *DrillEngine) publish(ctx context.Context, event domain.Event) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.Warn("publish event",
			zap.String("type", string(event.Type)),
			zap.String("attempt_id", event.AttemptID),
			zap.Error(err),
		)
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.Invalid("userId", "is required")
	}
	return nil
}

func attemptLockKey(attemptID string) string {
	return "attempt:" + attemptID
}

func startLockKey(userID, drillID string) string {
	return "start:" + userID + ":" + drillID
}
