package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gradestack/submissions-api/internal/models"
)

// GraderQueueRepository defines data operations for external grader queue
// records. Claim and result-post selections take row locks so that concurrent
// workers never end up holding the same record.
type GraderQueueRepository interface {
	Create(ctx context.Context, record *models.ExternalGraderDetail) error
	GetBySubmissionID(ctx context.Context, submissionID uint) (models.ExternalGraderDetail, error)
	// ClaimNext selects the oldest eligible record for the queue: pending,
	// retry, or pulled past the reclaim threshold. Rows locked by concurrent
	// claimants are skipped, not waited on.
	ClaimNext(ctx context.Context, queueName string, reclaimBefore time.Time) (models.ExternalGraderDetail, error)
	// LockBySubmissionID acquires the record's row lock without waiting; a
	// held lock surfaces immediately as an error (see IsLockNotAvailable).
	LockBySubmissionID(ctx context.Context, submissionID uint) (models.ExternalGraderDetail, error)
	Save(ctx context.Context, record *models.ExternalGraderDetail) error
	// ResetFailed is the administrative bulk action returning failed records
	// to the claimable pool. Not reachable through the worker protocol.
	ResetFailed(ctx context.Context, queueName string, now time.Time) (int64, error)
	// WithTx returns a repository scoped to the given transaction handle.
	WithTx(tx *gorm.DB) GraderQueueRepository
}

type graderQueueRepository struct {
	db *gorm.DB
}

// NewGraderQueueRepository instantiates the repository.
func NewGraderQueueRepository(db *gorm.DB) GraderQueueRepository {
	return &graderQueueRepository{db: db}
}

func (r *graderQueueRepository) WithTx(tx *gorm.DB) GraderQueueRepository {
	return &graderQueueRepository{db: tx}
}

func (r *graderQueueRepository) Create(ctx context.Context, record *models.ExternalGraderDetail) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *graderQueueRepository) GetBySubmissionID(ctx context.Context, submissionID uint) (models.ExternalGraderDetail, error) {
	var record models.ExternalGraderDetail
	err := r.db.WithContext(ctx).Model(&models.ExternalGraderDetail{}).
		Preload("Submission").
		Preload("Submission.StudentItem").
		Where("submission_id = ?", submissionID).
		First(&record).Error
	if err != nil {
		return models.ExternalGraderDetail{}, err
	}

	return record, nil
}

func (r *graderQueueRepository) ClaimNext(ctx context.Context, queueName string, reclaimBefore time.Time) (models.ExternalGraderDetail, error) {
	query := r.db.WithContext(ctx).Model(&models.ExternalGraderDetail{}).
		Where("queue_name = ?", queueName).
		Where(
			r.db.Where("status IN ?", []string{models.GraderStatusPending, models.GraderStatusRetry}).
				Or("status = ? AND status_time < ?", models.GraderStatusPulled, reclaimBefore),
		).
		Order("status_time ASC")

	// SKIP LOCKED keeps concurrent claimants from serializing on one row.
	// sqlite (tests) has no row locks; its single-writer model covers it.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var record models.ExternalGraderDetail
	if err := query.First(&record).Error; err != nil {
		return models.ExternalGraderDetail{}, err
	}

	// Associations are loaded after the locking select; preloading inside a
	// FOR UPDATE query would extend the lock to unrelated tables.
	err := r.db.WithContext(ctx).
		Preload("StudentItem").
		First(&record.Submission, record.SubmissionID).Error
	if err != nil {
		return models.ExternalGraderDetail{}, err
	}

	return record, nil
}

func (r *graderQueueRepository) LockBySubmissionID(ctx context.Context, submissionID uint) (models.ExternalGraderDetail, error) {
	query := r.db.WithContext(ctx).Model(&models.ExternalGraderDetail{}).
		Where("submission_id = ?", submissionID)

	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"})
	}

	var record models.ExternalGraderDetail
	if err := query.First(&record).Error; err != nil {
		return models.ExternalGraderDetail{}, err
	}

	err := r.db.WithContext(ctx).
		Preload("StudentItem").
		First(&record.Submission, record.SubmissionID).Error
	if err != nil {
		return models.ExternalGraderDetail{}, err
	}

	return record, nil
}

func (r *graderQueueRepository) Save(ctx context.Context, record *models.ExternalGraderDetail) error {
	return r.db.WithContext(ctx).Model(record).
		Updates(map[string]interface{}{
			"status":       record.Status,
			"num_failures": record.NumFailures,
			"pull_key":     record.PullKey,
			"status_time":  record.StatusTime,
			"grader_reply": record.GraderReply,
		}).Error
}

func (r *graderQueueRepository) ResetFailed(ctx context.Context, queueName string, now time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ExternalGraderDetail{}).
		Where("status = ?", models.GraderStatusFailed)

	if queueName != "" {
		query = query.Where("queue_name = ?", queueName)
	}

	result := query.Updates(map[string]interface{}{
		"status":      models.GraderStatusPending,
		"status_time": now,
	})

	return result.RowsAffected, result.Error
}
