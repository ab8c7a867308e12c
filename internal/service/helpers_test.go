package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.StudentItem{},
		&models.Submission{},
		&models.Score{},
		&models.ScoreSummary{},
		&models.ScoreAnnotation{},
		&models.ExternalGraderDetail{},
		&models.SubmissionFile{},
		&models.User{},
	))
	return db
}

func createStudentItem(t *testing.T, db *gorm.DB, itemID string) models.StudentItem {
	t.Helper()
	item := models.StudentItem{StudentID: "student-1", CourseID: "course-1", ItemID: itemID, ItemType: "sga"}
	require.NoError(t, db.Create(&item).Error)
	return item
}

func createSubmission(t *testing.T, db *gorm.DB, item models.StudentItem, attempt uint) models.Submission {
	t.Helper()
	submission := models.Submission{
		UUID:          uuid.NewString(),
		StudentItemID: item.ID,
		AttemptNumber: attempt,
		SubmittedAt:   time.Now(),
		CreatedAt:     time.Now(),
		Answer:        []byte(`{"answer":"hello"}`),
		Status:        models.SubmissionStatusActive,
		StudentItem:   item,
	}
	require.NoError(t, db.Omit("StudentItem").Create(&submission).Error)
	return submission
}

// memoryCache is a map-backed SubmissionCache for tests.
type memoryCache struct {
	entries     map[string]models.Submission
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]models.Submission)}
}

func (c *memoryCache) Get(_ context.Context, uuid string) (models.Submission, bool) {
	submission, ok := c.entries[models.SubmissionCacheKey(uuid)]
	return submission, ok
}

func (c *memoryCache) Set(_ context.Context, submission models.Submission) {
	c.entries[submission.CacheKey()] = submission
}

func (c *memoryCache) Invalidate(_ context.Context, uuid string) {
	delete(c.entries, models.SubmissionCacheKey(uuid))
	c.invalidated = append(c.invalidated, uuid)
}
