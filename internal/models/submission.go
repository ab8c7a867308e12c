package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission status values. Submissions are only ever soft-deleted so that
// instructors can reset student state while preserving history for analytics.
const (
	SubmissionStatusActive  = "A"
	SubmissionStatusDeleted = "D"
)

// MaxAnswerBytes bounds the serialized answer payload (100 KiB).
const MaxAnswerBytes = 1024 * 100

// Submission is a single response by a student for a given problem in a given
// course. A student may have multiple submissions for the same problem.
// Submissions are immutable after creation: corrective changes are expressed
// as new rows, never updates. The only exceptions are the soft-delete status
// flip and a one-time uuid-format normalization.
type Submission struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"size:36;not null;index" json:"uuid"`
	StudentItemID uint           `gorm:"not null;index" json:"student_item_id"`
	AttemptNumber uint           `gorm:"not null" json:"attempt_number"`
	SubmittedAt   time.Time      `gorm:"not null;index" json:"submitted_at"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
	Answer        datatypes.JSON `gorm:"type:json" json:"answer"`
	Status        string         `gorm:"size:1;not null;default:A" json:"status"`
	StudentItem   StudentItem    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student_item"`
}

// IsDeleted reports whether the submission has been soft-deleted.
func (s Submission) IsDeleted() bool {
	return s.Status == SubmissionStatusDeleted
}

// CacheKey returns the cache key used by the read-through submission cache.
func (s Submission) CacheKey() string {
	return SubmissionCacheKey(s.UUID)
}

// SubmissionCacheKey builds the cache key for a submission uuid.
func SubmissionCacheKey(uuid string) string {
	return "submissions:submission:" + uuid
}
