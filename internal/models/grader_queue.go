package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExternalGraderDetail status values. A record starts out pending, is pulled
// by a grader worker, and ends up retired on success. Scoring failures move it
// to retry (claimable again) until the failure budget is exhausted, at which
// point it parks in failed until an operator resets it.
const (
	GraderStatusPending = "pending"
	GraderStatusPulled  = "pulled"
	GraderStatusRetry   = "retry"
	GraderStatusFailed  = "failed"
	GraderStatusRetired = "retired"
)

// InvalidTransitionError is returned when a status change violates the grader
// queue state machine. Callers surface it as a client error, not a crash.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid grader status transition from %q to %q", e.From, e.To)
}

// allowedTransitions encodes the grader queue state machine. failed->pending
// is administrative-only; the worker protocol never triggers it.
var allowedTransitions = map[string][]string{
	GraderStatusPending: {GraderStatusPulled},
	GraderStatusPulled:  {GraderStatusRetired, GraderStatusRetry, GraderStatusFailed},
	GraderStatusRetry:   {GraderStatusPulled},
	GraderStatusFailed:  {GraderStatusPending},
	GraderStatusRetired: {},
}

// ExternalGraderDetail tracks one submission's journey through external
// grading. It is the unit of mutual exclusion for both the claim and the
// result-submission paths.
type ExternalGraderDetail struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SubmissionID   uint       `gorm:"not null;uniqueIndex" json:"submission_id"`
	QueueName      string     `gorm:"size:128;not null;index" json:"queue_name"`
	GraderFileName string     `gorm:"size:255" json:"grader_file_name"`
	PointsPossible uint       `gorm:"not null;default:1" json:"points_possible"`
	Status         string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	NumFailures    uint       `gorm:"not null;default:0" json:"num_failures"`
	PullKey        string     `gorm:"size:36" json:"-"`
	StatusTime     time.Time  `gorm:"not null;index" json:"status_time"`
	GraderReply    string     `gorm:"type:text" json:"grader_reply"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	Submission     Submission `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"submission"`
}

// CanTransitionTo reports whether the state machine permits moving to the
// given status from the current one.
func (e *ExternalGraderDetail) CanTransitionTo(status string) bool {
	for _, next := range allowedTransitions[e.Status] {
		if next == status {
			return true
		}
	}
	return false
}

// TransitionTo applies a status change in memory. Any transition into retry or
// failed increments the failure counter; every transition refreshes
// StatusTime. The caller is responsible for persisting the record.
func (e *ExternalGraderDetail) TransitionTo(status string, now time.Time) error {
	if !e.CanTransitionTo(status) {
		return &InvalidTransitionError{From: e.Status, To: status}
	}

	if status == GraderStatusRetry || status == GraderStatusFailed {
		e.NumFailures++
	}

	e.Status = status
	e.StatusTime = now
	return nil
}

// EnsurePullKey issues the opaque pull credential if the record does not
// already carry one. The key is deliberately NOT rotated when a timed-out
// pulled record is reclaimed: a late result from the original worker is still
// recognized, matching legacy xqueue behavior.
func (e *ExternalGraderDetail) EnsurePullKey() string {
	if e.PullKey == "" {
		e.PullKey = uuid.NewString()
	}
	return e.PullKey
}

// ReclaimableAt returns the instant at which a pulled record becomes eligible
// for another claim.
func (e *ExternalGraderDetail) ReclaimableAt(timeout time.Duration) time.Time {
	return e.StatusTime.Add(timeout)
}
