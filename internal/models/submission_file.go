package models

import (
	"fmt"
	"time"
)

// SubmissionFile is a binary attachment owned by exactly one
// ExternalGraderDetail. The uuid doubles as the opaque path component of the
// file's delivery URL; actual byte-serving is handled by an external
// collaborator.
type SubmissionFile struct {
	ID                     uint                 `gorm:"primaryKey" json:"id"`
	UUID                   string               `gorm:"size:36;not null;uniqueIndex" json:"uuid"`
	ExternalGraderDetailID uint                 `gorm:"not null;index" json:"external_grader_detail_id"`
	OriginalFilename       string               `gorm:"size:255;not null" json:"original_filename"`
	Content                []byte               `gorm:"type:bytes" json:"-"`
	ContentType            string               `gorm:"size:128" json:"content_type"`
	CreatedAt              time.Time            `gorm:"not null;index" json:"created_at"`
	ExternalGraderDetail   ExternalGraderDetail `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// DeliveryURL returns the deterministic path the external grader uses to fetch
// the file: /{queue_name}/{uuid}.
func (f SubmissionFile) DeliveryURL(queueName string) string {
	return fmt.Sprintf("/%s/%s", queueName, f.UUID)
}
