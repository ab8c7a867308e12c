package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
)

// StudentItemRepository defines data operations for student item identity rows.
type StudentItemRepository interface {
	Get(ctx context.Context, studentID, courseID, itemID string) (models.StudentItem, error)
	GetOrCreate(ctx context.Context, item *models.StudentItem) error
}

type studentItemRepository struct {
	db *gorm.DB
}

// NewStudentItemRepository instantiates the repository.
func NewStudentItemRepository(db *gorm.DB) StudentItemRepository {
	return &studentItemRepository{db: db}
}

func (r *studentItemRepository) Get(ctx context.Context, studentID, courseID, itemID string) (models.StudentItem, error) {
	var item models.StudentItem
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND item_id = ?", studentID, courseID, itemID).
		First(&item).Error
	if err != nil {
		return models.StudentItem{}, err
	}

	return item, nil
}

// GetOrCreate loads the identity row matching the item's tuple, creating it on
// first submission. A concurrent creator winning the race is tolerated by
// re-reading after a uniqueness violation.
func (r *studentItemRepository) GetOrCreate(ctx context.Context, item *models.StudentItem) error {
	existing, err := r.Get(ctx, item.StudentID, item.CourseID, item.ItemID)
	if err == nil {
		*item = existing
		return nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if !IsUniqueViolation(err) {
			return err
		}

		existing, err = r.Get(ctx, item.StudentID, item.CourseID, item.ItemID)
		if err != nil {
			return err
		}
		*item = existing
	}

	return nil
}
