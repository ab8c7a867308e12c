package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
)

// SubmissionRepository defines data operations for submissions. Soft-deleted
// rows are excluded only where a method says so; there is no implicit
// default-scope filtering.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	// GetByUUID looks up an active submission. The lookup tolerates both
	// hyphenated and compact uuid forms, since historic rows were stored in
	// either format.
	GetByUUID(ctx context.Context, uuid string) (models.Submission, error)
	ListActive(ctx context.Context, studentItemID uint, limit int) ([]models.Submission, error)
	ListAll(ctx context.Context, studentItemID uint, limit int) ([]models.Submission, error)
	// LatestAttemptNumber returns the attempt number of the most recent active
	// submission for the student item, or 0 when none exists.
	LatestAttemptNumber(ctx context.Context, studentItemID uint) (uint, error)
	SoftDelete(ctx context.Context, submission *models.Submission) error
	SoftDeleteAllForItem(ctx context.Context, studentItemID uint) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("StudentItem")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByUUID(ctx context.Context, uuid string) (models.Submission, error) {
	var submission models.Submission
	err := r.baseQuery(ctx).
		Where("uuid IN ?", uuidForms(uuid)).
		Where("status <> ?", models.SubmissionStatusDeleted).
		Order("id DESC").
		First(&submission).Error
	if err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListActive(ctx context.Context, studentItemID uint, limit int) ([]models.Submission, error) {
	return r.list(ctx, studentItemID, limit, true)
}

func (r *submissionRepository) ListAll(ctx context.Context, studentItemID uint, limit int) ([]models.Submission, error) {
	return r.list(ctx, studentItemID, limit, false)
}

func (r *submissionRepository) list(ctx context.Context, studentItemID uint, limit int, activeOnly bool) ([]models.Submission, error) {
	query := r.baseQuery(ctx).
		Where("student_item_id = ?", studentItemID).
		Order("submitted_at DESC, id DESC")

	if activeOnly {
		query = query.Where("status <> ?", models.SubmissionStatusDeleted)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var submissions []models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) LatestAttemptNumber(ctx context.Context, studentItemID uint) (uint, error) {
	var submission models.Submission
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("student_item_id = ?", studentItemID).
		Where("status <> ?", models.SubmissionStatusDeleted).
		Order("submitted_at DESC, id DESC").
		First(&submission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	return submission.AttemptNumber, nil
}

func (r *submissionRepository) SoftDelete(ctx context.Context, submission *models.Submission) error {
	submission.Status = models.SubmissionStatusDeleted
	return r.db.WithContext(ctx).Model(submission).
		Update("status", models.SubmissionStatusDeleted).Error
}

func (r *submissionRepository) SoftDeleteAllForItem(ctx context.Context, studentItemID uint) ([]models.Submission, error) {
	submissions, err := r.list(ctx, studentItemID, 0, true)
	if err != nil {
		return nil, err
	}

	if len(submissions) == 0 {
		return nil, nil
	}

	err = r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("student_item_id = ?", studentItemID).
		Where("status <> ?", models.SubmissionStatusDeleted).
		Update("status", models.SubmissionStatusDeleted).Error
	if err != nil {
		return nil, err
	}

	return submissions, nil
}

// uuidForms returns the candidate stored representations for a uuid: the
// input as given, hyphenated, and compact.
func uuidForms(uuid string) []string {
	compact := strings.ReplaceAll(uuid, "-", "")
	forms := []string{uuid}

	if len(compact) == 32 {
		hyphenated := strings.Join([]string{
			compact[0:8], compact[8:12], compact[12:16], compact[16:20], compact[20:32],
		}, "-")
		if hyphenated != uuid {
			forms = append(forms, hyphenated)
		}
		if compact != uuid {
			forms = append(forms, compact)
		}
	}

	return forms
}
