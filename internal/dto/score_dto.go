package dto

import (
	"time"

	"github.com/gradestack/submissions-api/internal/models"
)

// SetScoreRequest applies an externally computed score to a submission.
type SetScoreRequest struct {
	SubmissionUUID    string `json:"submission_uuid" validate:"required"`
	PointsEarned      uint   `json:"points_earned"`
	PointsPossible    uint   `json:"points_possible"`
	AnnotationCreator string `json:"annotation_creator" validate:"max=255"`
	AnnotationType    string `json:"annotation_type" validate:"max=255"`
	AnnotationReason  string `json:"annotation_reason"`
}

// ResetScoreRequest clears a student's effective score on one item.
type ResetScoreRequest struct {
	StudentID  string `json:"student_id" validate:"required,max=255"`
	CourseID   string `json:"course_id" validate:"required,max=255"`
	ItemID     string `json:"item_id" validate:"required,max=255"`
	ClearState bool   `json:"clear_state"`
}

// ScoreResponse is the API representation of a score.
type ScoreResponse struct {
	SubmissionUUID string    `json:"submission_uuid,omitempty"`
	PointsEarned   uint      `json:"points_earned"`
	PointsPossible uint      `json:"points_possible"`
	Reset          bool      `json:"reset"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewScoreResponse maps a score model to its API representation.
func NewScoreResponse(score models.Score, submissionUUID string) ScoreResponse {
	return ScoreResponse{
		SubmissionUUID: submissionUUID,
		PointsEarned:   score.PointsEarned,
		PointsPossible: score.PointsPossible,
		Reset:          score.Reset,
		CreatedAt:      score.CreatedAt,
	}
}
