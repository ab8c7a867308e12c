package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
)

// SubmissionFileRepository defines data operations for grader attachments.
type SubmissionFileRepository interface {
	Create(ctx context.Context, file *models.SubmissionFile) error
	GetByUUID(ctx context.Context, uuid string) (models.SubmissionFile, error)
	// ListForRecord returns all attachments for a queue record, newest first.
	ListForRecord(ctx context.Context, recordID uint) ([]models.SubmissionFile, error)
}

type submissionFileRepository struct {
	db *gorm.DB
}

// NewSubmissionFileRepository instantiates the repository.
func NewSubmissionFileRepository(db *gorm.DB) SubmissionFileRepository {
	return &submissionFileRepository{db: db}
}

func (r *submissionFileRepository) Create(ctx context.Context, file *models.SubmissionFile) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *submissionFileRepository) GetByUUID(ctx context.Context, uuid string) (models.SubmissionFile, error) {
	var file models.SubmissionFile
	err := r.db.WithContext(ctx).Model(&models.SubmissionFile{}).
		Where("uuid = ?", uuid).
		First(&file).Error
	if err != nil {
		return models.SubmissionFile{}, err
	}

	return file, nil
}

func (r *submissionFileRepository) ListForRecord(ctx context.Context, recordID uint) ([]models.SubmissionFile, error) {
	var files []models.SubmissionFile
	err := r.db.WithContext(ctx).Model(&models.SubmissionFile{}).
		Where("external_grader_detail_id = ?", recordID).
		Order("created_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}

	return files, nil
}
