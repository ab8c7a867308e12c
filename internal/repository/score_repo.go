package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
)

// ScoreRepository is the transactional store for immutable score rows and
// their derived summaries. Score rows are append-only and never updated.
type ScoreRepository interface {
	Append(ctx context.Context, score *models.Score) error
	// LatestForSubmission returns the most recent score referencing the
	// submission, by insertion order.
	LatestForSubmission(ctx context.Context, submissionID uint) (models.Score, error)
	GetSummary(ctx context.Context, studentItemID uint) (models.ScoreSummary, error)
	CreateSummary(ctx context.Context, summary *models.ScoreSummary) error
	SaveSummary(ctx context.Context, summary *models.ScoreSummary) error
	CreateAnnotation(ctx context.Context, annotation *models.ScoreAnnotation) error
	// SummariesForStudentCourse lists score summaries with their latest score
	// for every item the student touched in the course.
	SummariesForStudentCourse(ctx context.Context, courseID, studentID string) ([]models.ScoreSummary, error)
	// WithTx returns a repository scoped to the given transaction handle.
	WithTx(tx *gorm.DB) ScoreRepository
}

type scoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository instantiates the repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

func (r *scoreRepository) WithTx(tx *gorm.DB) ScoreRepository {
	return &scoreRepository{db: tx}
}

func (r *scoreRepository) Append(ctx context.Context, score *models.Score) error {
	return r.db.WithContext(ctx).Create(score).Error
}

func (r *scoreRepository) LatestForSubmission(ctx context.Context, submissionID uint) (models.Score, error) {
	var score models.Score
	err := r.db.WithContext(ctx).Model(&models.Score{}).
		Where("submission_id = ?", submissionID).
		Order("id DESC").
		First(&score).Error
	if err != nil {
		return models.Score{}, err
	}

	return score, nil
}

func (r *scoreRepository) GetSummary(ctx context.Context, studentItemID uint) (models.ScoreSummary, error) {
	var summary models.ScoreSummary
	err := r.db.WithContext(ctx).Model(&models.ScoreSummary{}).
		Preload("Highest").
		Preload("Latest").
		Where("student_item_id = ?", studentItemID).
		First(&summary).Error
	if err != nil {
		return models.ScoreSummary{}, err
	}

	return summary, nil
}

func (r *scoreRepository) CreateSummary(ctx context.Context, summary *models.ScoreSummary) error {
	return r.db.WithContext(ctx).Create(summary).Error
}

func (r *scoreRepository) SaveSummary(ctx context.Context, summary *models.ScoreSummary) error {
	return r.db.WithContext(ctx).Model(summary).
		Updates(map[string]interface{}{
			"highest_id": summary.HighestID,
			"latest_id":  summary.LatestID,
		}).Error
}

func (r *scoreRepository) CreateAnnotation(ctx context.Context, annotation *models.ScoreAnnotation) error {
	return r.db.WithContext(ctx).Create(annotation).Error
}

func (r *scoreRepository) SummariesForStudentCourse(ctx context.Context, courseID, studentID string) ([]models.ScoreSummary, error) {
	var summaries []models.ScoreSummary
	err := r.db.WithContext(ctx).Model(&models.ScoreSummary{}).
		Joins("JOIN student_items ON student_items.id = score_summaries.student_item_id").
		Where("student_items.course_id = ? AND student_items.student_id = ?", courseID, studentID).
		Preload("Latest").
		Preload("Latest.Submission").
		Preload("StudentItem").
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}

	return summaries, nil
}
