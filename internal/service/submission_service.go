package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
)

// SubmissionService orchestrates submission creation and reads.
type SubmissionService interface {
	Create(ctx context.Context, req dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	// Get returns an active submission by uuid, serving cached copies when
	// available.
	Get(ctx context.Context, submissionUUID string) (dto.SubmissionResponse, error)
	// List returns the submissions for a student item, newest first. Deleted
	// rows are included only when includeDeleted is set.
	List(ctx context.Context, studentID, courseID, itemID string, includeDeleted bool, limit int) ([]dto.SubmissionResponse, error)
	// Delete soft-deletes a submission; history is preserved.
	Delete(ctx context.Context, submissionUUID string) error
}

type submissionService struct {
	submissions    repository.SubmissionRepository
	studentItems   repository.StudentItemRepository
	dispatcher     QueueDispatcher
	files          FileService
	cache          SubmissionCache
	validator      *validator.Validate
	maxAnswerBytes int
	logger         zerolog.Logger
	now            func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance. The cache may
// be nil to disable read-through caching.
func NewSubmissionService(submissions repository.SubmissionRepository, studentItems repository.StudentItemRepository, dispatcher QueueDispatcher, files FileService, cache SubmissionCache, validate *validator.Validate, maxAnswerBytes int, logger zerolog.Logger) SubmissionService {
	if maxAnswerBytes <= 0 {
		maxAnswerBytes = models.MaxAnswerBytes
	}

	return &submissionService{
		submissions:    submissions,
		studentItems:   studentItems,
		dispatcher:     dispatcher,
		files:          files,
		cache:          cache,
		validator:      validate,
		maxAnswerBytes: maxAnswerBytes,
		logger:         logger.With().Str("component", "submission_service").Logger(),
		now:            time.Now,
	}
}

func (s *submissionService) Create(ctx context.Context, req dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if len(req.Answer) > s.maxAnswerBytes {
		return dto.SubmissionResponse{}, ErrAnswerTooLarge
	}

	item := models.StudentItem{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		ItemID:    req.ItemID,
		ItemType:  req.ItemType,
	}
	if err := s.studentItems.GetOrCreate(ctx, &item); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to resolve student item: %w", err)
	}

	attemptNumber := uint(1)
	if req.AttemptNumber != nil {
		attemptNumber = *req.AttemptNumber
	} else {
		latest, err := s.submissions.LatestAttemptNumber(ctx, item.ID)
		if err != nil {
			return dto.SubmissionResponse{}, fmt.Errorf("failed to determine attempt number: %w", err)
		}
		attemptNumber = latest + 1
	}

	now := s.now()
	submittedAt := now
	if req.SubmittedAt != nil {
		submittedAt = *req.SubmittedAt
	}

	submission := models.Submission{
		UUID:          uuid.NewString(),
		StudentItemID: item.ID,
		AttemptNumber: attemptNumber,
		SubmittedAt:   submittedAt,
		CreatedAt:     now,
		Answer:        datatypes.JSON(req.Answer),
		Status:        models.SubmissionStatusActive,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, fmt.Errorf("failed to create submission: %w", err)
	}
	submission.StudentItem = item

	s.logger.Info().
		Str("submission_uuid", submission.UUID).
		Str("course_id", item.CourseID).
		Str("item_id", item.ItemID).
		Uint("attempt_number", attemptNumber).
		Msg("submission created")

	response := dto.NewSubmissionResponse(submission)

	if req.QueueName != "" {
		record, err := s.dispatcher.Enqueue(ctx, submission, req.QueueName, req.GraderFileName, req.PointsPossible)
		if err != nil {
			return dto.SubmissionResponse{}, err
		}

		if len(req.Files) > 0 {
			inputs := make(map[string]interface{}, len(req.Files))
			for name, encoded := range req.Files {
				content, decodeErr := base64.StdEncoding.DecodeString(encoded)
				if decodeErr != nil {
					return dto.SubmissionResponse{}, &FileProcessingError{Key: name, Err: decodeErr}
				}
				inputs[name] = content
			}

			urls, err := s.files.Attach(ctx, record, inputs)
			if err != nil {
				return dto.SubmissionResponse{}, err
			}
			response.FileURLs = urls
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, submission)
	}

	return response, nil
}

func (s *submissionService) Get(ctx context.Context, submissionUUID string) (dto.SubmissionResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, submissionUUID); ok {
			return dto.NewSubmissionResponse(cached), nil
		}
	}

	submission, err := s.submissions.GetByUUID(ctx, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, fmt.Errorf("failed to load submission %s: %w", submissionUUID, err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, submission)
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, studentID, courseID, itemID string, includeDeleted bool, limit int) ([]dto.SubmissionResponse, error) {
	item, err := s.studentItems.Get(ctx, studentID, courseID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []dto.SubmissionResponse{}, nil
		}
		return nil, fmt.Errorf("failed to load student item: %w", err)
	}

	var submissions []models.Submission
	if includeDeleted {
		submissions, err = s.submissions.ListAll(ctx, item.ID, limit)
	} else {
		submissions, err = s.submissions.ListActive(ctx, item.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Delete(ctx context.Context, submissionUUID string) error {
	submission, err := s.submissions.GetByUUID(ctx, submissionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return fmt.Errorf("failed to load submission %s: %w", submissionUUID, err)
	}

	if err := s.submissions.SoftDelete(ctx, &submission); err != nil {
		return fmt.Errorf("failed to delete submission %s: %w", submissionUUID, err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, submission.UUID)
	}

	s.logger.Info().Str("submission_uuid", submissionUUID).Msg("submission soft-deleted")

	return nil
}
