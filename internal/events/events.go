// Package events defines the explicit observer contract for scoring events.
// Listeners register with the score service instead of hooking into ambient
// global dispatch.
package events

import (
	"context"
	"time"
)

// Score event types.
const (
	ScoreEventSet   = "score_set"
	ScoreEventReset = "score_reset"
)

// ScoreEvent describes a scoring event emitted after a Score has been durably
// committed.
type ScoreEvent struct {
	Type            string    `json:"type"`
	AnonymousUserID string    `json:"anonymous_user_id"`
	CourseID        string    `json:"course_id"`
	ItemID          string    `json:"item_id"`
	SubmissionUUID  string    `json:"submission_uuid,omitempty"`
	PointsEarned    uint      `json:"points_earned"`
	PointsPossible  uint      `json:"points_possible"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScoreObserver receives scoring events. Observer failures are logged by the
// emitter and never affect the scoring transaction, which has already
// committed by the time observers run.
type ScoreObserver interface {
	OnScoreEvent(ctx context.Context, event ScoreEvent) error
}

// ObserverFunc adapts a plain function to the ScoreObserver interface.
type ObserverFunc func(ctx context.Context, event ScoreEvent) error

// OnScoreEvent implements ScoreObserver.
func (f ObserverFunc) OnScoreEvent(ctx context.Context, event ScoreEvent) error {
	return f(ctx, event)
}
