package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/events"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
)

// ScoreService appends immutable score rows and keeps the per-student-item
// score summary consistent. Summary maintenance happens in the same
// transaction as the score insert.
type ScoreService interface {
	// RegisterObserver adds a listener for scoring events. Observers run after
	// the scoring transaction has committed; their failures are logged only.
	RegisterObserver(observer events.ScoreObserver)
	SetScore(ctx context.Context, req dto.SetScoreRequest) (models.Score, error)
	// SetScoreInTx applies a score inside the caller's transaction, using a
	// savepoint so a scoring failure does not poison the outer transaction.
	// No observers are notified; the caller emits events after its commit.
	SetScoreInTx(ctx context.Context, tx *gorm.DB, submission models.Submission, pointsEarned, pointsPossible uint) (models.Score, error)
	// NotifyScoreSet emits a score_set event to registered observers.
	NotifyScoreSet(ctx context.Context, score models.Score, item models.StudentItem, submissionUUID string)
	ResetScore(ctx context.Context, req dto.ResetScoreRequest) error
	// GetScore returns the latest learner-facing score for the student item,
	// or nil when absent or hidden.
	GetScore(ctx context.Context, studentID, courseID, itemID string) (*models.Score, error)
	// GetCourseScores maps item ids to the latest non-hidden score for every
	// item the student touched in the course.
	GetCourseScores(ctx context.Context, courseID, studentID string) (map[string]dto.ScoreResponse, error)
	// LatestScoreForSubmission returns the newest score referencing the
	// submission, or nil when absent or hidden.
	LatestScoreForSubmission(ctx context.Context, submissionUUID string) (*models.Score, error)
}

type scoreService struct {
	db           *gorm.DB
	scores       repository.ScoreRepository
	submissions  repository.SubmissionRepository
	studentItems repository.StudentItemRepository
	observers    []events.ScoreObserver
	cache        SubmissionCache
	logger       zerolog.Logger
	now          func() time.Time
}

// NewScoreService constructs a ScoreService instance. The cache may be nil;
// it is only used to drop cached submissions cleared by a reset.
func NewScoreService(db *gorm.DB, scores repository.ScoreRepository, submissions repository.SubmissionRepository, studentItems repository.StudentItemRepository, cache SubmissionCache, logger zerolog.Logger) ScoreService {
	return &scoreService{
		db:           db,
		scores:       scores,
		submissions:  submissions,
		studentItems: studentItems,
		cache:        cache,
		logger:       logger.With().Str("component", "score_service").Logger(),
		now:          time.Now,
	}
}

func (s *scoreService) RegisterObserver(observer events.ScoreObserver) {
	if observer != nil {
		s.observers = append(s.observers, observer)
	}
}

func (s *scoreService) SetScore(ctx context.Context, req dto.SetScoreRequest) (models.Score, error) {
	tracer := otel.Tracer("github.com/gradestack/submissions-api/internal/service/score")
	ctx, span := tracer.Start(ctx, "score.set")
	defer span.End()
	span.SetAttributes(attribute.String("submission.uuid", req.SubmissionUUID))

	submission, err := s.submissions.GetByUUID(ctx, req.SubmissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Score{}, ErrSubmissionNotFound
		}
		span.SetStatus(codes.Error, "submission lookup failed")
		return models.Score{}, fmt.Errorf("failed to load submission %s: %w", req.SubmissionUUID, err)
	}

	var score models.Score
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		score, txErr = s.appendScore(ctx, tx, submission.StudentItemID, &submission.ID, req.PointsEarned, req.PointsPossible, false)
		if txErr != nil {
			return txErr
		}

		if req.AnnotationCreator != "" {
			annotation := models.ScoreAnnotation{
				ScoreID:        score.ID,
				AnnotationType: req.AnnotationType,
				Creator:        req.AnnotationCreator,
				Reason:         req.AnnotationReason,
			}
			if txErr = s.scores.WithTx(tx).CreateAnnotation(ctx, &annotation); txErr != nil {
				return fmt.Errorf("failed to create score annotation: %w", txErr)
			}
		}

		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "score transaction failed")
		return models.Score{}, err
	}

	s.logger.Info().
		Str("submission_uuid", submission.UUID).
		Uint("points_earned", score.PointsEarned).
		Uint("points_possible", score.PointsPossible).
		Msg("score set")

	s.NotifyScoreSet(ctx, score, submission.StudentItem, submission.UUID)

	return score, nil
}

func (s *scoreService) SetScoreInTx(ctx context.Context, tx *gorm.DB, submission models.Submission, pointsEarned, pointsPossible uint) (models.Score, error) {
	var score models.Score
	err := tx.Transaction(func(inner *gorm.DB) error {
		var txErr error
		score, txErr = s.appendScore(ctx, inner, submission.StudentItemID, &submission.ID, pointsEarned, pointsPossible, false)
		return txErr
	})
	if err != nil {
		return models.Score{}, err
	}

	return score, nil
}

// appendScore inserts an immutable score row and updates the summary inside
// the given transaction handle.
func (s *scoreService) appendScore(ctx context.Context, tx *gorm.DB, studentItemID uint, submissionID *uint, pointsEarned, pointsPossible uint, reset bool) (models.Score, error) {
	repo := s.scores.WithTx(tx)

	score := models.Score{
		StudentItemID:  studentItemID,
		SubmissionID:   submissionID,
		PointsEarned:   pointsEarned,
		PointsPossible: pointsPossible,
		CreatedAt:      s.now(),
		Reset:          reset,
	}

	if err := repo.Append(ctx, &score); err != nil {
		return models.Score{}, fmt.Errorf("failed to append score: %w", err)
	}

	if err := s.updateSummary(ctx, repo, &score); err != nil {
		return models.Score{}, err
	}

	return score, nil
}

// updateSummary maintains the latest/highest pointers for the score's student
// item. The latest pointer always moves to the new score; the highest pointer
// moves when the new score is a reset, when the current highest is hidden and
// the new score is not, or when the new ratio strictly exceeds the current
// one. Ties keep the existing highest.
func (s *scoreService) updateSummary(ctx context.Context, repo repository.ScoreRepository, score *models.Score) error {
	summary, err := repo.GetSummary(ctx, score.StudentItemID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load score summary: %w", err)
		}

		created := models.ScoreSummary{
			StudentItemID: score.StudentItemID,
			HighestID:     score.ID,
			LatestID:      score.ID,
		}
		if err := repo.CreateSummary(ctx, &created); err != nil {
			// Two first scores racing both miss the summary and both try to
			// create it; the loser's insert is a no-op since the winner's
			// summary already reflects one of the scores.
			if repository.IsUniqueViolation(err) {
				s.logger.Warn().
					Uint("student_item_id", score.StudentItemID).
					Msg("concurrent score summary creation, ignoring duplicate")
				return nil
			}
			return fmt.Errorf("failed to create score summary: %w", err)
		}
		return nil
	}

	summary.LatestID = score.ID

	newRatio, newDefined := score.ToFloat()
	currentRatio, currentDefined := summary.Highest.ToFloat()

	switch {
	case score.Reset:
		summary.HighestID = score.ID
	case !currentDefined && newDefined:
		summary.HighestID = score.ID
	case newDefined && currentDefined && newRatio > currentRatio:
		summary.HighestID = score.ID
	}

	if err := repo.SaveSummary(ctx, &summary); err != nil {
		return fmt.Errorf("failed to save score summary: %w", err)
	}

	return nil
}

func (s *scoreService) NotifyScoreSet(ctx context.Context, score models.Score, item models.StudentItem, submissionUUID string) {
	s.notify(ctx, events.ScoreEvent{
		Type:            events.ScoreEventSet,
		AnonymousUserID: item.StudentID,
		CourseID:        item.CourseID,
		ItemID:          item.ItemID,
		SubmissionUUID:  submissionUUID,
		PointsEarned:    score.PointsEarned,
		PointsPossible:  score.PointsPossible,
		CreatedAt:       score.CreatedAt,
	})
}

func (s *scoreService) notify(ctx context.Context, event events.ScoreEvent) {
	for _, observer := range s.observers {
		if err := observer.OnScoreEvent(ctx, event); err != nil {
			s.logger.Warn().Err(err).
				Str("event_type", event.Type).
				Str("item_id", event.ItemID).
				Msg("score observer failed")
		}
	}
}

func (s *scoreService) ResetScore(ctx context.Context, req dto.ResetScoreRequest) error {
	item, err := s.studentItems.Get(ctx, req.StudentID, req.CourseID, req.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No student item means no score to reset.
			return nil
		}
		return fmt.Errorf("failed to load student item: %w", err)
	}

	var score models.Score
	var cleared []models.Submission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		// A reset score is 0/0 with the reset flag: it forcibly becomes both
		// latest and highest, and is hidden from learner-facing reads.
		score, txErr = s.appendScore(ctx, tx, item.ID, nil, 0, 0, true)
		if txErr != nil {
			return txErr
		}

		if req.ClearState {
			cleared, txErr = repository.NewSubmissionRepository(tx).SoftDeleteAllForItem(ctx, item.ID)
			if txErr != nil {
				return fmt.Errorf("failed to clear submissions: %w", txErr)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("student_id", req.StudentID).
		Str("course_id", req.CourseID).
		Str("item_id", req.ItemID).
		Bool("clear_state", req.ClearState).
		Msg("score reset")

	if s.cache != nil {
		for _, submission := range cleared {
			s.cache.Invalidate(ctx, submission.UUID)
		}
	}

	s.notify(ctx, events.ScoreEvent{
		Type:            events.ScoreEventReset,
		AnonymousUserID: item.StudentID,
		CourseID:        item.CourseID,
		ItemID:          item.ItemID,
		CreatedAt:       score.CreatedAt,
	})

	return nil
}

func (s *scoreService) GetScore(ctx context.Context, studentID, courseID, itemID string) (*models.Score, error) {
	item, err := s.studentItems.Get(ctx, studentID, courseID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load student item: %w", err)
	}

	summary, err := s.scores.GetSummary(ctx, item.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load score summary: %w", err)
	}

	if summary.Latest.IsHidden() {
		return nil, nil
	}

	latest := summary.Latest
	return &latest, nil
}

func (s *scoreService) GetCourseScores(ctx context.Context, courseID, studentID string) (map[string]dto.ScoreResponse, error) {
	summaries, err := s.scores.SummariesForStudentCourse(ctx, courseID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load score summaries for course %s: %w", courseID, err)
	}

	scores := make(map[string]dto.ScoreResponse, len(summaries))
	for _, summary := range summaries {
		if summary.Latest.IsHidden() {
			continue
		}

		submissionUUID := ""
		if summary.Latest.Submission != nil {
			submissionUUID = summary.Latest.Submission.UUID
		}
		scores[summary.StudentItem.ItemID] = dto.NewScoreResponse(summary.Latest, submissionUUID)
	}

	return scores, nil
}

func (s *scoreService) LatestScoreForSubmission(ctx context.Context, submissionUUID string) (*models.Score, error) {
	submission, err := s.submissions.GetByUUID(ctx, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to load submission %s: %w", submissionUUID, err)
	}

	score, err := s.scores.LatestForSubmission(ctx, submission.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest score for submission %s: %w", submissionUUID, err)
	}

	if score.IsHidden() {
		return nil, nil
	}

	return &score, nil
}
