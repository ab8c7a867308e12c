package dto

import (
	"encoding/json"
	"time"

	"github.com/gradestack/submissions-api/internal/models"
)

// SubmissionCreateRequest carries a new student answer. The grader fields are
// optional: when QueueName is set, the submission is also enqueued for
// external grading and any attached files are delivered to the grader.
type SubmissionCreateRequest struct {
	StudentID      string            `json:"student_id" validate:"required,max=255"`
	CourseID       string            `json:"course_id" validate:"required,max=255"`
	ItemID         string            `json:"item_id" validate:"required,max=255"`
	ItemType       string            `json:"item_type" validate:"max=100"`
	Answer         json.RawMessage   `json:"answer" validate:"required"`
	AttemptNumber  *uint             `json:"attempt_number"`
	SubmittedAt    *time.Time        `json:"submitted_at"`
	QueueName      string            `json:"queue_name" validate:"max=128"`
	GraderFileName string            `json:"grader_file_name" validate:"max=255"`
	PointsPossible uint              `json:"points_possible"`
	Files          map[string]string `json:"files"` // filename -> base64 content
}

// SubmissionResponse is the API representation of a submission.
type SubmissionResponse struct {
	UUID          string            `json:"uuid"`
	StudentItemID uint              `json:"student_item"`
	AttemptNumber uint              `json:"attempt_number"`
	SubmittedAt   time.Time         `json:"submitted_at"`
	CreatedAt     time.Time         `json:"created_at"`
	Answer        json.RawMessage   `json:"answer"`
	Status        string            `json:"status"`
	FileURLs      map[string]string `json:"file_urls,omitempty"`
}

// NewSubmissionResponse maps a model to its API representation.
func NewSubmissionResponse(submission models.Submission) SubmissionResponse {
	return SubmissionResponse{
		UUID:          submission.UUID,
		StudentItemID: submission.StudentItemID,
		AttemptNumber: submission.AttemptNumber,
		SubmittedAt:   submission.SubmittedAt,
		CreatedAt:     submission.CreatedAt,
		Answer:        json.RawMessage(submission.Answer),
		Status:        submission.Status,
	}
}

// NewSubmissionResponseSlice maps a slice of models.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}
