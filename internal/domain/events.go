package domain

import "time"

// EventType names a drill attempt lifecycle event. Values double as routing keys.
type EventType string

const (
	EventAttemptStarted   EventType = "drill.attempt.started"
	EventAttemptCompleted EventType = "drill.attempt.completed"
	EventAttemptAbandoned EventType = "drill.attempt.abandoned"
	EventAttemptTimedOut  EventType = "drill.attempt.timed_out"
)

// Event is published after an attempt transition is persisted.
type Event struct {
	Type          EventType   `json:"type"`
	AttemptID     string      `json:"attemptId"`
	UserID        string      `json:"userId"`
	DrillID       string      `json:"drillId"`
	DrillType     DrillType   `json:"drillType"`
	AttemptNumber int         `json:"attemptNumber"`
	Score         int         `json:"score,omitempty"`
	Passed        bool        `json:"passed,omitempty"`
	PointsAwarded int         `json:"pointsAwarded,omitempty"`
	NewBadges     []BadgeCode `json:"newBadges,omitempty"`
	OccurredAt    time.Time   `json:"occurredAt"`
}

// Finished reports whether the event ends an attempt with a score.
func (e Event) Finished() bool {
	return e.Type == EventAttemptCompleted || e.Type == EventAttemptTimedOut
}

// NewAttemptEvent builds an event from the attempt state.
func NewAttemptEvent(t EventType, a DrillAttempt, now time.Time) Event {
	return Event{
		Type:          t,
		AttemptID:     a.ID,
		UserID:        a.UserID,
		DrillID:       a.DrillID,
		DrillType:     a.DrillType,
		AttemptNumber: a.AttemptNumber,
		Score:         a.Score,
		Passed:        a.Passed,
		OccurredAt:    now,
	}
}
