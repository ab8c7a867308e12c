package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("disk error")
}

func setupFileService(t *testing.T) (FileService, models.ExternalGraderDetail) {
	t.Helper()
	db := setupServiceDB(t)

	item := createStudentItem(t, db, "item-1")
	submission := createSubmission(t, db, item, 1)
	record := models.ExternalGraderDetail{
		SubmissionID:   submission.ID,
		QueueName:      "q1",
		PointsPossible: 10,
		Status:         models.GraderStatusPending,
	}
	require.NoError(t, db.Create(&record).Error)

	return NewFileService(repository.NewSubmissionFileRepository(db), testLogger()), record
}

func TestAttachAcceptsHeterogeneousInputs(t *testing.T) {
	svc, record := setupFileService(t)

	urls, err := svc.Attach(context.Background(), record, map[string]interface{}{
		"raw.bin":    []byte{0x01, 0x02, 0x03},
		"notes.txt":  "plain text content",
		"stream.csv": strings.NewReader("a,b,c\n1,2,3\n"),
		"buffer.dat": bytes.NewBuffer([]byte("buffered")),
	})
	require.NoError(t, err)
	require.Len(t, urls, 4)

	for name, url := range urls {
		require.True(t, strings.HasPrefix(url, "/q1/"), "url for %s must carry the queue name: %s", name, url)
	}

	manifest, err := svc.ManifestForGrader(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, urls, manifest)
}

func TestAttachRejectsInvalidInput(t *testing.T) {
	svc, record := setupFileService(t)

	_, err := svc.Attach(context.Background(), record, map[string]interface{}{
		"bad.bin": 42,
	})

	var invalid *InvalidFileTypeError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "bad.bin", invalid.Key)
}

func TestAttachWrapsReadFailures(t *testing.T) {
	svc, record := setupFileService(t)

	_, err := svc.Attach(context.Background(), record, map[string]interface{}{
		"broken.bin": brokenReader{},
	})

	var processing *FileProcessingError
	require.ErrorAs(t, err, &processing)
	require.Equal(t, "broken.bin", processing.Key)
	require.ErrorContains(t, err, "disk error")
}

func TestManifestForGraderEmpty(t *testing.T) {
	svc, record := setupFileService(t)

	manifest, err := svc.ManifestForGrader(context.Background(), record)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	require.Empty(t, manifest)
}
