package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"drill-service/internal/domain"
	"drill-service/internal/infra/memory"
)

func TestDefinitionRepositoryCachesInRedis(t *testing.T) {
	mr, client := newServer(t)

	loader := &countingLoader{DefinitionLoader: memory.NewDefinitionStore(sampleDrill())}
	repo := NewDefinitionRepository(client, loader, time.Minute)
	ctx := context.Background()

	def, err := repo.GetDrill(ctx, "flood-1")
	if err != nil {
		t.Fatalf("get drill: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("drill:flood-1:definition") {
		t.Fatalf("expected definition key to be set")
	}
	if ttl := mr.TTL("drill:flood-1:definition"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("expected ttl with up to 10%% jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetDrill(ctx, "flood-1")
	if err != nil {
		t.Fatalf("get drill 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.TotalPossiblePoints() != def.TotalPossiblePoints() || !cached.Scenarios[0].Options[0].IsCorrect {
		t.Fatalf("cached definition lost answer data: %+v", cached)
	}

	if err := repo.Invalidate(ctx, "flood-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("drill:flood-1:definition") {
		t.Fatalf("expected definition key to be removed")
	}
	if _, err := repo.GetDrill(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLockerExcludesConcurrentHolders(t *testing.T) {
	mr, client := newServer(t)
	locker := NewLocker(client, time.Second)
	locker.wait = 50 * time.Millisecond
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "attempt:a1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("lock:attempt:a1") {
		t.Fatalf("expected lock key")
	}
	if _, err := locker.Lock(ctx, "attempt:a1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected busy lock to conflict, got %v", err)
	}
	unlock()
	if mr.Exists("lock:attempt:a1") {
		t.Fatalf("expected lock released")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	locker.wait = 2 * time.Second
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "attempt:a2")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxSeen)
	}
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newServer(t)
	locker := NewLocker(client, time.Second)

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry and another holder taking over.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("lock:k", "someone-else"); err != nil {
		t.Fatalf("set: %v", err)
	}
	unlock()
	if got, _ := mr.Get("lock:k"); got != "someone-else" {
		t.Fatalf("release must not delete a foreign lock, got %q", got)
	}
}

func TestStatsRecorder(t *testing.T) {
	mr, client := newServer(t)
	r := NewStatsRecorder(client)
	ctx := context.Background()

	empty, err := r.Stats(ctx, "d1")
	if err != nil || empty.TotalAttempts != 0 {
		t.Fatalf("expected empty stats, got %+v %v", empty, err)
	}

	for i := 0; i < 4; i++ {
		if err := r.RecordStart(ctx, "d1"); err != nil {
			t.Fatalf("record start: %v", err)
		}
	}
	_ = r.RecordCompletion(ctx, "d1", 90, 100, true)
	_ = r.RecordCompletion(ctx, "d1", 50, 200, false)

	st, err := r.Stats(ctx, "d1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalAttempts != 4 || st.TotalCompletions != 2 || st.TotalPassed != 1 {
		t.Fatalf("unexpected counters %+v", st)
	}
	if st.AverageScore != 70 || st.AverageTime != 150 || st.SuccessRate != 50 {
		t.Fatalf("unexpected derived stats %+v", st)
	}
	if got := mr.HGet("drill:d1:stats", "score_sum"); got != "140" {
		t.Fatalf("expected score_sum 140, got %q", got)
	}
}

type countingLoader struct {
	DefinitionLoader
	calls int
}

func (l *countingLoader) LoadDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error) {
	l.calls++
	return l.DefinitionLoader.LoadDrill(ctx, drillID)
}

func sampleDrill() domain.DrillDefinition {
	return domain.DrillDefinition{
		ID:           "flood-1",
		Title:        "Flash flood evacuation",
		Type:         domain.DrillFlood,
		Difficulty:   domain.DifficultyHard,
		PassingScore: 70,
		MaxAttempts:  3,
		Version:      1,
		Scenarios: []domain.Scenario{
			{
				Title:     "Water rising",
				TimeLimit: 20,
				Order:     1,
				Options: []domain.ScenarioOption{
					{Text: "Move to higher ground", IsCorrect: true, Points: 20},
					{Text: "Drive through water"},
				},
			},
		},
	}
}

func newServer(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
