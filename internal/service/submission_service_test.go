package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
)

func newSubmissionService(t *testing.T, db *gorm.DB, cache SubmissionCache, maxAnswerBytes int) SubmissionService {
	t.Helper()
	dispatcher := newDispatcher(t, db, newScoreService(t, db, nil), 5)
	files := NewFileService(repository.NewSubmissionFileRepository(db), testLogger())
	return NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewStudentItemRepository(db),
		dispatcher,
		files,
		cache,
		validator.New(validator.WithRequiredStructEnabled()),
		maxAnswerBytes,
		testLogger(),
	)
}

func createRequest(itemID string) dto.SubmissionCreateRequest {
	return dto.SubmissionCreateRequest{
		StudentID: "student-1",
		CourseID:  "course-1",
		ItemID:    itemID,
		ItemType:  "sga",
		Answer:    json.RawMessage(`{"answer":"hello"}`),
	}
}

func TestCreateAssignsSequentialAttemptNumbers(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	for want := uint(1); want <= 3; want++ {
		created, err := svc.Create(context.Background(), createRequest("item-1"))
		require.NoError(t, err)
		require.Equal(t, want, created.AttemptNumber)
	}

	// an explicit attempt number overrides the sequence
	req := createRequest("item-1")
	attempt := uint(42)
	req.AttemptNumber = &attempt
	created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, uint(42), created.AttemptNumber)
}

func TestCreateRejectsOversizedAnswer(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 64)

	req := createRequest("item-1")
	req.Answer = json.RawMessage(`{"answer":"` + string(make([]byte, 128)) + `"}`)

	_, err := svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrAnswerTooLarge)
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	req := createRequest("item-1")
	req.StudentID = ""

	_, err := svc.Create(context.Background(), req)
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestCreateEnqueuesAndAttachesFiles(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	req := createRequest("item-1")
	req.QueueName = "q1"
	req.GraderFileName = "grader.py"
	req.PointsPossible = 10
	req.Files = map[string]string{
		"report.txt": base64.StdEncoding.EncodeToString([]byte("hello grader")),
	}

	created, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, created.FileURLs, 1)
	require.Contains(t, created.FileURLs, "report.txt")

	var record models.ExternalGraderDetail
	require.NoError(t, db.Where("queue_name = ?", "q1").First(&record).Error)
	require.Equal(t, models.GraderStatusPending, record.Status)
	require.Equal(t, uint(10), record.PointsPossible)
}

func TestCreateRejectsUndecodableFile(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	req := createRequest("item-1")
	req.QueueName = "q1"
	req.Files = map[string]string{"bad.bin": "not-base64!!"}

	_, err := svc.Create(context.Background(), req)
	var processing *FileProcessingError
	require.ErrorAs(t, err, &processing)
	require.Equal(t, "bad.bin", processing.Key)
}

func TestGetUsesCache(t *testing.T) {
	db := setupServiceDB(t)
	cache := newMemoryCache()
	svc := newSubmissionService(t, db, cache, 0)

	created, err := svc.Create(context.Background(), createRequest("item-1"))
	require.NoError(t, err)

	// remove the row; the cached copy still serves reads
	require.NoError(t, db.Exec("DELETE FROM submissions").Error)

	fetched, err := svc.Get(context.Background(), created.UUID)
	require.NoError(t, err)
	require.Equal(t, created.UUID, fetched.UUID)

	cache.Invalidate(context.Background(), created.UUID)
	_, err = svc.Get(context.Background(), created.UUID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestListActiveExcludesDeleted(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	first, err := svc.Create(context.Background(), createRequest("item-1"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), createRequest("item-1"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), first.UUID))

	active, err := svc.List(context.Background(), "student-1", "course-1", "item-1", false, 0)
	require.NoError(t, err)
	require.Len(t, active, 1)

	all, err := svc.List(context.Background(), "student-1", "course-1", "item-1", true, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestListUnknownItemReturnsEmpty(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	submissions, err := svc.List(context.Background(), "nobody", "nowhere", "nothing", false, 0)
	require.NoError(t, err)
	require.Empty(t, submissions)
}

func TestDeleteUnknownSubmission(t *testing.T) {
	db := setupServiceDB(t)
	svc := newSubmissionService(t, db, nil, 0)

	err := svc.Delete(context.Background(), "missing-uuid")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
