package domain

import (
	"slices"
	"time"
)

// AttemptStatus is the attempt state machine: in_progress -> completed | abandoned.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Terminal reports whether no further transitions are allowed.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

// CompletionReason records why a completed attempt was finalized.
type CompletionReason string

const (
	ReasonSubmitted CompletionReason = "submitted"
	ReasonTimeout   CompletionReason = "timeout"
)

// CertificateThreshold is the minimum score for a certificate on a passing attempt.
const CertificateThreshold = 80

// Response is one recorded answer. Responses are append-only.
type Response struct {
	ScenarioIndex    int       `json:"scenarioIndex"`
	SelectedOption   int       `json:"selectedOption"`
	IsCorrect        bool      `json:"isCorrect"`
	PointsEarned     int       `json:"pointsEarned"`
	TimeSpentSeconds int       `json:"timeSpent"`
	RespondedAt      time.Time `json:"respondedAt"`
}

// DrillAttempt is one user's traversal of one drill. It carries a snapshot of
// the scenarios taken at start so later edits to the definition never leak in.
type DrillAttempt struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"userId"`
	DrillID              string           `json:"drillId"`
	DrillType            DrillType        `json:"drillType"`
	DrillVersion         int              `json:"drillVersion"`
	AttemptNumber        int              `json:"attemptNumber"`
	Status               AttemptStatus    `json:"status"`
	CurrentScenarioIndex int              `json:"currentScenarioIndex"`
	Scenarios            []Scenario       `json:"scenarios"`
	Responses            []Response       `json:"responses"`
	TotalPoints          int              `json:"totalPoints"`
	MaxPossiblePoints    int              `json:"maxPossiblePoints"`
	PassingScore         int              `json:"passingScore"`
	Score                int              `json:"score"`
	Passed               bool             `json:"passed"`
	CertificateIssued    bool             `json:"certificateIssued"`
	CertificateIssuedAt  *time.Time       `json:"certificateIssuedAt,omitempty"`
	TotalTimeSpent       int              `json:"totalTimeSpent"`
	CompletionReason     CompletionReason `json:"completionReason,omitempty"`
	StartedAt            time.Time        `json:"startedAt"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
	Version              int              `json:"version"`
}

// NewAttempt opens attempt number n of def for userID.
func NewAttempt(id, userID string, def DrillDefinition, n int, now time.Time) DrillAttempt {
	return DrillAttempt{
		ID:                id,
		UserID:            userID,
		DrillID:           def.ID,
		DrillType:         def.Type,
		DrillVersion:      def.Version,
		AttemptNumber:     n,
		Status:            AttemptInProgress,
		Scenarios:         cloneScenarios(def.Scenarios),
		Responses:         []Response{},
		MaxPossiblePoints: def.TotalPossiblePoints(),
		PassingScore:      def.PassingScore,
		StartedAt:         now,
	}
}

// ResponseOutcome is returned to the caller after a response is recorded.
type ResponseOutcome struct {
	IsCorrect         bool   `json:"isCorrect"`
	PointsEarned      int    `json:"pointsEarned"`
	Feedback          string `json:"feedback,omitempty"`
	CorrectOption     int    `json:"correctOption"`
	CurrentScore      int    `json:"currentScore"`
	TotalPoints       int    `json:"totalPoints"`
	NextScenarioIndex *int   `json:"nextScenarioIndex"`
}

// Respond records the answer for the current scenario. The attempt is left
// untouched when an error is returned.
func (a *DrillAttempt) Respond(scenarioIndex, selectedOption, timeSpent int, now time.Time) (ResponseOutcome, error) {
	if a.Status != AttemptInProgress {
		return ResponseOutcome{}, ErrInvalidState
	}
	if scenarioIndex != a.CurrentScenarioIndex || scenarioIndex >= len(a.Scenarios) {
		return ResponseOutcome{}, ErrScenarioMismatch
	}
	if timeSpent < 0 {
		return ResponseOutcome{}, Invalid("timeSpent", "cannot be negative")
	}
	scenario := a.Scenarios[scenarioIndex]
	if selectedOption < 0 || selectedOption >= len(scenario.Options) {
		return ResponseOutcome{}, ErrInvalidOption
	}

	option := scenario.Options[selectedOption]
	earned := 0
	if option.IsCorrect {
		earned = option.Points
	}

	a.Responses = append(a.Responses, Response{
		ScenarioIndex:    scenarioIndex,
		SelectedOption:   selectedOption,
		IsCorrect:        option.IsCorrect,
		PointsEarned:     earned,
		TimeSpentSeconds: timeSpent,
		RespondedAt:      now,
	})
	a.CurrentScenarioIndex++
	a.TotalPoints += earned
	a.TotalTimeSpent += timeSpent

	out := ResponseOutcome{
		IsCorrect:     option.IsCorrect,
		PointsEarned:  earned,
		Feedback:      option.Feedback,
		CorrectOption: scenario.CorrectOption(),
		CurrentScore:  a.RunningScore(),
		TotalPoints:   a.TotalPoints,
	}
	if a.CurrentScenarioIndex < len(a.Scenarios) {
		next := a.CurrentScenarioIndex
		out.NextScenarioIndex = &next
	}
	return out, nil
}

// Complete finalizes the attempt with whatever responses were collected.
// Unanswered scenarios count as zero points.
func (a *DrillAttempt) Complete(now time.Time, reason CompletionReason) error {
	if a.Status != AttemptInProgress {
		return ErrInvalidState
	}
	a.Score = ComputeScore(a.TotalPoints, a.MaxPossiblePoints)
	a.Passed = a.Score >= a.PassingScore
	if a.Passed && a.Score >= CertificateThreshold && !a.CertificateIssued {
		a.CertificateIssued = true
		issued := now
		a.CertificateIssuedAt = &issued
	}
	a.Status = AttemptCompleted
	a.CompletionReason = reason
	a.CompletedAt = &now
	return nil
}

// Abandon ends the attempt without scoring.
func (a *DrillAttempt) Abandon(now time.Time) error {
	if a.Status != AttemptInProgress {
		return ErrInvalidState
	}
	a.Status = AttemptAbandoned
	a.CompletedAt = &now
	return nil
}

// RunningScore is the percentage earned so far against the frozen maximum.
func (a DrillAttempt) RunningScore() int {
	return ComputeScore(a.TotalPoints, a.MaxPossiblePoints)
}

// Deadline is the latest time the attempt may stay in progress.
func (a DrillAttempt) Deadline(grace time.Duration) time.Time {
	var secs int
	for _, s := range a.Scenarios {
		secs += s.TimeLimit
	}
	return a.StartedAt.Add(time.Duration(secs)*time.Second + grace)
}

// Clone returns a deep copy safe to mutate.
func (a DrillAttempt) Clone() DrillAttempt {
	out := a
	out.Scenarios = cloneScenarios(a.Scenarios)
	out.Responses = slices.Clone(a.Responses)
	if out.Responses == nil {
		out.Responses = []Response{}
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	if a.CertificateIssuedAt != nil {
		t := *a.CertificateIssuedAt
		out.CertificateIssuedAt = &t
	}
	return out
}

// ComputeScore rounds total/max as a percentage, half up. A zero maximum scores 0.
func ComputeScore(total, maxPoints int) int {
	if maxPoints <= 0 || total <= 0 {
		return 0
	}
	score := (200*total + maxPoints) / (2 * maxPoints)
	return min(score, 100)
}

func cloneScenarios(in []Scenario) []Scenario {
	out := make([]Scenario, len(in))
	for i, s := range in {
		s.Options = slices.Clone(s.Options)
		out[i] = s
	}
	return out
}

// AttemptView is the attempt as shown to its owner. Scenario answers stay
// hidden; responses already reveal what was chosen.
type AttemptView struct {
	ID                   string           `json:"id"`
	DrillID              string           `json:"drillId"`
	DrillType            DrillType        `json:"drillType"`
	AttemptNumber        int              `json:"attemptNumber"`
	Status               AttemptStatus    `json:"status"`
	CurrentScenarioIndex int              `json:"currentScenarioIndex"`
	Scenarios            []PublicScenario `json:"scenarios"`
	Responses            []Response       `json:"responses"`
	TotalPoints          int              `json:"totalPoints"`
	MaxPossiblePoints    int              `json:"maxPossiblePoints"`
	CurrentScore         int              `json:"currentScore"`
	Score                int              `json:"score"`
	Passed               bool             `json:"passed"`
	CertificateIssued    bool             `json:"certificateIssued"`
	TotalTimeSpent       int              `json:"totalTimeSpent"`
	CompletionReason     CompletionReason `json:"completionReason,omitempty"`
	StartedAt            time.Time        `json:"startedAt"`
	CompletedAt          *time.Time       `json:"completedAt,omitempty"`
}

// View returns the owner-facing view of a.
func (a DrillAttempt) View() AttemptView {
	return AttemptView{
		ID:                   a.ID,
		DrillID:              a.DrillID,
		DrillType:            a.DrillType,
		AttemptNumber:        a.AttemptNumber,
		Status:               a.Status,
		CurrentScenarioIndex: a.CurrentScenarioIndex,
		Scenarios:            PublicScenarios(a.Scenarios),
		Responses:            slices.Clone(a.Responses),
		TotalPoints:          a.TotalPoints,
		MaxPossiblePoints:    a.MaxPossiblePoints,
		CurrentScore:         a.RunningScore(),
		Score:                a.Score,
		Passed:               a.Passed,
		CertificateIssued:    a.CertificateIssued,
		TotalTimeSpent:       a.TotalTimeSpent,
		CompletionReason:     a.CompletionReason,
		StartedAt:            a.StartedAt,
		CompletedAt:          a.CompletedAt,
	}
}
