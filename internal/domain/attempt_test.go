package domain_test

import (
	"errors"
	"testing"
	"time"

	"drill-service/internal/domain"
)

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

// fourScenarioDrill has four scenarios worth 25 points each.
func fourScenarioDrill() domain.DrillDefinition {
	def := domain.DrillDefinition{
		ID:           "quake-1",
		Title:        "Earthquake at school",
		Type:         domain.DrillEarthquake,
		Difficulty:   domain.DifficultyEasy,
		PassingScore: 70,
		MaxAttempts:  3,
		Version:      1,
	}
	for i := 0; i < 4; i++ {
		def.Scenarios = append(def.Scenarios, domain.Scenario{
			Title:     "Step",
			TimeLimit: 30,
			Order:     i + 1,
			Options: []domain.ScenarioOption{
				{Text: "Run outside", Points: 0, Feedback: "Stay inside while shaking"},
				{Text: "Drop, cover, hold", IsCorrect: true, Points: 25, Feedback: "Correct"},
			},
		})
	}
	return def
}

func TestTotalPossiblePointsIsDerived(t *testing.T) {
	def := fourScenarioDrill()
	if got := def.TotalPossiblePoints(); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	def.Scenarios[0].Options[0].Points = 40
	if got := def.TotalPossiblePoints(); got != 115 {
		t.Fatalf("expected max per scenario to be summed, got %d", got)
	}
}

func TestAttemptFreezesDefinition(t *testing.T) {
	def := fourScenarioDrill()
	a := domain.NewAttempt("a1", "u1", def, 1, t0)

	def.Scenarios[3].Options[1].Points = 100
	if a.MaxPossiblePoints != 100 {
		t.Fatalf("expected frozen max 100, got %d", a.MaxPossiblePoints)
	}
	if a.Scenarios[3].Options[1].Points != 25 {
		t.Fatalf("snapshot must not alias the definition")
	}
}

func TestRespondRejectsDuplicateScenario(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)

	out, err := a.Respond(0, 1, 5, t0)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if !out.IsCorrect || out.PointsEarned != 25 || out.CurrentScore != 25 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.NextScenarioIndex == nil || *out.NextScenarioIndex != 1 {
		t.Fatalf("expected next scenario 1, got %v", out.NextScenarioIndex)
	}

	if _, err := a.Respond(0, 1, 5, t0); !errors.Is(err, domain.ErrScenarioMismatch) {
		t.Fatalf("expected scenario mismatch, got %v", err)
	}
	if a.TotalPoints != 25 || len(a.Responses) != 1 {
		t.Fatalf("duplicate must not count: points=%d responses=%d", a.TotalPoints, len(a.Responses))
	}
}

func TestRespondValidatesBeforeMutating(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)

	if _, err := a.Respond(0, 2, 5, t0); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	if _, err := a.Respond(0, -1, 5, t0); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}
	if _, err := a.Respond(2, 0, 5, t0); !errors.Is(err, domain.ErrScenarioMismatch) {
		t.Fatalf("expected scenario mismatch for skip, got %v", err)
	}
	if _, err := a.Respond(0, 0, -1, t0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if a.CurrentScenarioIndex != 0 || len(a.Responses) != 0 {
		t.Fatalf("failed responds must leave the attempt untouched")
	}
}

func TestRespondAtLastScenarioDoesNotComplete(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)
	var out domain.ResponseOutcome
	for i := 0; i < 4; i++ {
		var err error
		if out, err = a.Respond(i, 1, 3, t0); err != nil {
			t.Fatalf("respond %d failed: %v", i, err)
		}
	}
	if out.NextScenarioIndex != nil {
		t.Fatalf("expected no next scenario, got %d", *out.NextScenarioIndex)
	}
	if a.Status != domain.AttemptInProgress {
		t.Fatalf("attempt must stay in progress until completed, got %s", a.Status)
	}
	if _, err := a.Respond(4, 0, 1, t0); !errors.Is(err, domain.ErrScenarioMismatch) {
		t.Fatalf("expected mismatch past the end, got %v", err)
	}
}

func TestCompleteWithSkippedScenario(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)
	for i := 0; i < 3; i++ {
		if _, err := a.Respond(i, 1, 10, t0); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}
	done := t0.Add(time.Minute)
	if err := a.Complete(done, domain.ReasonSubmitted); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if a.Score != 75 || !a.Passed || a.CertificateIssued {
		t.Fatalf("expected score 75 passed without certificate, got %+v", a)
	}
	if a.TotalTimeSpent != 30 || a.CompletedAt == nil || !a.CompletedAt.Equal(done) {
		t.Fatalf("unexpected timing: %d %v", a.TotalTimeSpent, a.CompletedAt)
	}
	if err := a.Complete(done, domain.ReasonSubmitted); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on second complete, got %v", err)
	}
	if _, err := a.Respond(3, 1, 1, done); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state after completion, got %v", err)
	}
}

func TestCertificateIssuedAtEighty(t *testing.T) {
	def := fourScenarioDrill()
	def.PassingScore = 60
	def.Scenarios = append(def.Scenarios, domain.Scenario{
		Title: "Bonus", TimeLimit: 10, Order: 5,
		Options: []domain.ScenarioOption{{Text: "a", IsCorrect: true, Points: 25}, {Text: "b"}},
	})
	a := domain.NewAttempt("a1", "u1", def, 1, t0)
	for i := 0; i < 4; i++ {
		if _, err := a.Respond(i, 1, 1, t0); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
	}
	if err := a.Complete(t0, domain.ReasonSubmitted); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if a.Score != 80 || !a.CertificateIssued || a.CertificateIssuedAt == nil {
		t.Fatalf("expected certificate at 80, got score=%d cert=%v", a.Score, a.CertificateIssued)
	}
}

func TestAbandonIsTerminal(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)
	if err := a.Abandon(t0); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if err := a.Abandon(t0); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if err := a.Complete(t0, domain.ReasonTimeout); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if a.Score != 0 || a.Passed {
		t.Fatalf("abandoned attempts are not scored")
	}
}

func TestComputeScoreRounding(t *testing.T) {
	cases := []struct {
		total, max, want int
	}{
		{0, 0, 0},
		{10, 0, 0},
		{75, 100, 75},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13}, // 12.5 rounds up
		{1, 200, 1},
		{100, 100, 100},
	}
	for _, tc := range cases {
		if got := domain.ComputeScore(tc.total, tc.max); got != tc.want {
			t.Fatalf("ComputeScore(%d, %d) = %d, want %d", tc.total, tc.max, got, tc.want)
		}
	}
}

func TestDeadlineSumsScenarioLimits(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)
	want := t0.Add(2*time.Minute + 15*time.Second)
	if got := a.Deadline(15 * time.Second); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := domain.NewAttempt("a1", "u1", fourScenarioDrill(), 1, t0)
	if _, err := a.Respond(0, 1, 1, t0); err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	c := a.Clone()
	c.Responses[0].PointsEarned = 99
	c.Scenarios[0].Options[1].Points = 99
	if a.Responses[0].PointsEarned != 25 || a.Scenarios[0].Options[1].Points != 25 {
		t.Fatalf("clone shares memory with the original")
	}
}
