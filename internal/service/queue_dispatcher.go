package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/observability"
	"github.com/gradestack/submissions-api/internal/repository"
)

// GradingJob is the payload handed to a grader worker on a successful claim.
type GradingJob struct {
	SubmissionID   uint
	PullKey        string
	QueueName      string
	GraderFileName string
	StudentID      string
	Answer         json.RawMessage
	CreatedAt      time.Time
	FileURLs       map[string]string
}

// QueueDispatcher implements the pull/claim/complete protocol for external
// graders. Each operation runs in its own transaction; no cross-request
// transaction is ever held open.
type QueueDispatcher interface {
	// Claim hands out at most one eligible record for the queue, transitions
	// it to pulled and issues its pull credential. An empty queue returns
	// ErrQueueEmpty, which is not a failure.
	Claim(ctx context.Context, queueName string) (GradingJob, error)
	// SubmitResult validates the pull credential and applies the reported
	// score. Scoring-persistence failures are converted into a retry or
	// failed transition and are NOT returned: the worker has no way to retry
	// a result post, so it is acknowledged either way.
	SubmitResult(ctx context.Context, submissionID uint, pullKey string, pointsEarned uint, rawReply string) error
	// ResetFailed returns failed records to the claimable pool.
	// Administrative only.
	ResetFailed(ctx context.Context, queueName string) (int64, error)
	// Enqueue creates the queue record for a submission destined for external
	// grading.
	Enqueue(ctx context.Context, submission models.Submission, queueName, graderFileName string, pointsPossible uint) (models.ExternalGraderDetail, error)
}

type queueDispatcher struct {
	db             *gorm.DB
	records        repository.GraderQueueRepository
	files          FileService
	scores         ScoreService
	reclaimTimeout time.Duration
	maxRetries     uint
	logger         zerolog.Logger
	now            func() time.Time
}

// NewQueueDispatcher constructs a QueueDispatcher instance.
func NewQueueDispatcher(db *gorm.DB, records repository.GraderQueueRepository, files FileService, scores ScoreService, reclaimTimeout time.Duration, maxRetries int, logger zerolog.Logger) QueueDispatcher {
	if reclaimTimeout <= 0 {
		reclaimTimeout = 5 * time.Minute
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}

	return &queueDispatcher{
		db:             db,
		records:        records,
		files:          files,
		scores:         scores,
		reclaimTimeout: reclaimTimeout,
		maxRetries:     uint(maxRetries),
		logger:         logger.With().Str("component", "queue_dispatcher").Logger(),
		now:            time.Now,
	}
}

func (d *queueDispatcher) Enqueue(ctx context.Context, submission models.Submission, queueName, graderFileName string, pointsPossible uint) (models.ExternalGraderDetail, error) {
	if queueName == "" {
		return models.ExternalGraderDetail{}, fmt.Errorf("queue name must not be empty")
	}
	if pointsPossible == 0 {
		pointsPossible = 1
	}

	now := d.now()
	record := models.ExternalGraderDetail{
		SubmissionID:   submission.ID,
		QueueName:      queueName,
		GraderFileName: graderFileName,
		PointsPossible: pointsPossible,
		Status:         models.GraderStatusPending,
		StatusTime:     now,
		CreatedAt:      now,
	}

	if err := d.records.Create(ctx, &record); err != nil {
		return models.ExternalGraderDetail{}, fmt.Errorf("failed to enqueue submission %d: %w", submission.ID, err)
	}

	d.logger.Info().
		Uint("submission_id", submission.ID).
		Str("queue_name", queueName).
		Msg("submission enqueued for external grading")

	return record, nil
}

func (d *queueDispatcher) Claim(ctx context.Context, queueName string) (GradingJob, error) {
	tracer := otel.Tracer("github.com/gradestack/submissions-api/internal/service/queue_dispatcher")
	ctx, span := tracer.Start(ctx, "queue.claim")
	defer span.End()
	span.SetAttributes(attribute.String("queue.name", queueName))

	var job GradingJob
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := d.records.WithTx(tx)

		record, err := repo.ClaimNext(ctx, queueName, d.now().Add(-d.reclaimTimeout))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueEmpty
			}
			if repository.IsLockNotAvailable(err) {
				return ErrQueueConflict
			}
			return fmt.Errorf("failed to select claimable record for queue %s: %w", queueName, err)
		}

		// A reclaimed record is already pulled; it keeps its status and its
		// original pull key so a late result from the first worker still
		// validates.
		if record.Status != models.GraderStatusPulled {
			prior := record.Status
			if err := record.TransitionTo(models.GraderStatusPulled, d.now()); err != nil {
				return err
			}
			d.logTransition(record, prior)
		} else {
			observability.QueueReclaims().WithLabelValues(queueName).Inc()
			d.logger.Info().
				Uint("record_id", record.ID).
				Str("queue_name", queueName).
				Msg("stale pulled record reclaimed")
		}

		record.EnsurePullKey()

		if err := repo.Save(ctx, &record); err != nil {
			return fmt.Errorf("failed to persist claim for record %d: %w", record.ID, err)
		}

		manifest, err := d.files.ManifestForGrader(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to build file manifest for record %d: %w", record.ID, err)
		}

		job = GradingJob{
			SubmissionID:   record.SubmissionID,
			PullKey:        record.PullKey,
			QueueName:      record.QueueName,
			GraderFileName: record.GraderFileName,
			StudentID:      record.Submission.StudentItem.StudentID,
			Answer:         json.RawMessage(record.Submission.Answer),
			CreatedAt:      record.CreatedAt,
			FileURLs:       manifest,
		}

		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrQueueEmpty) {
			span.SetStatus(codes.Error, "claim failed")
		}
		observability.QueueClaims().WithLabelValues(queueName, claimOutcome(err)).Inc()
		return GradingJob{}, err
	}

	observability.QueueClaims().WithLabelValues(queueName, "claimed").Inc()

	return job, nil
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, ErrQueueEmpty):
		return "empty"
	case errors.Is(err, ErrQueueConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (d *queueDispatcher) SubmitResult(ctx context.Context, submissionID uint, pullKey string, pointsEarned uint, rawReply string) error {
	tracer := otel.Tracer("github.com/gradestack/submissions-api/internal/service/queue_dispatcher")
	ctx, span := tracer.Start(ctx, "queue.submit_result")
	defer span.End()
	span.SetAttributes(attribute.Int("submission.id", int(submissionID)))

	var (
		scored     bool
		score      models.Score
		submission models.Submission
	)

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := d.records.WithTx(tx)

		record, err := repo.LockBySubmissionID(ctx, submissionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSubmissionNotFound
			}
			if repository.IsLockNotAvailable(err) {
				return ErrQueueConflict
			}
			return fmt.Errorf("failed to lock record for submission %d: %w", submissionID, err)
		}

		if record.PullKey == "" || pullKey != record.PullKey {
			d.logger.Error().
				Uint("submission_id", submissionID).
				Msg("pull credential mismatch on result post")
			return ErrIncorrectKey
		}

		prior := record.Status

		score, err = d.scores.SetScoreInTx(ctx, tx, record.Submission, pointsEarned, record.PointsPossible)
		if err == nil {
			record.GraderReply = rawReply
			if err := record.TransitionTo(models.GraderStatusRetired, d.now()); err != nil {
				return err
			}
			scored = true
			submission = record.Submission
		} else {
			// The worker cannot retry a result post, so scoring failures are
			// absorbed into the state machine instead of being surfaced.
			d.logger.Error().Err(err).
				Uint("submission_id", submissionID).
				Uint("num_failures", record.NumFailures).
				Msg("failed to apply grader score")

			next := models.GraderStatusRetry
			if record.NumFailures+1 >= d.maxRetries {
				next = models.GraderStatusFailed
			}
			if err := record.TransitionTo(next, d.now()); err != nil {
				return err
			}
		}

		d.logTransition(record, prior)

		if err := repo.Save(ctx, &record); err != nil {
			return fmt.Errorf("failed to persist result for record %d: %w", record.ID, err)
		}

		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "result post rejected")
		observability.QueueResults().WithLabelValues(resultOutcome(err)).Inc()
		return err
	}

	if scored {
		observability.QueueResults().WithLabelValues("retired").Inc()
		d.scores.NotifyScoreSet(ctx, score, submission.StudentItem, submission.UUID)
	} else {
		observability.QueueResults().WithLabelValues("retried").Inc()
	}

	return nil
}

func resultOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSubmissionNotFound):
		return "not_found"
	case errors.Is(err, ErrQueueConflict):
		return "conflict"
	case errors.Is(err, ErrIncorrectKey):
		return "bad_key"
	default:
		return "error"
	}
}

func (d *queueDispatcher) ResetFailed(ctx context.Context, queueName string) (int64, error) {
	count, err := d.records.ResetFailed(ctx, queueName, d.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed records: %w", err)
	}

	d.logger.Info().
		Str("queue_name", queueName).
		Int64("count", count).
		Msg("failed records reset to pending")

	return count, nil
}

func (d *queueDispatcher) logTransition(record models.ExternalGraderDetail, prior string) {
	d.logger.Info().
		Uint("record_id", record.ID).
		Uint("submission_id", record.SubmissionID).
		Str("queue_name", record.QueueName).
		Str("from", prior).
		Str("to", record.Status).
		Msg("grader record status transition")
}
