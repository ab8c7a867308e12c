package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
)

// InvalidFileTypeError is raised when an attachment input is neither raw
// bytes nor a readable object. It names the offending key.
type InvalidFileTypeError struct {
	Key string
}

func (e *InvalidFileTypeError) Error() string {
	return fmt.Sprintf("invalid file object type for %s", e.Key)
}

// FileProcessingError is raised when reading an attachment fails. It names the
// offending key and wraps the underlying error.
type FileProcessingError struct {
	Key string
	Err error
}

func (e *FileProcessingError) Error() string {
	return fmt.Sprintf("error reading file %s: %v", e.Key, e.Err)
}

func (e *FileProcessingError) Unwrap() error {
	return e.Err
}

// fileInput is the tagged union an attachment input resolves to, classified
// once at ingestion instead of probed repeatedly.
type fileInput struct {
	kind   fileInputKind
	data   []byte
	reader io.Reader
}

type fileInputKind int

const (
	fileInputInvalid fileInputKind = iota
	fileInputBytes
	fileInputReadable
)

func classifyFileInput(value interface{}) fileInput {
	switch v := value.(type) {
	case []byte:
		return fileInput{kind: fileInputBytes, data: v}
	case string:
		return fileInput{kind: fileInputBytes, data: []byte(v)}
	case io.Reader:
		return fileInput{kind: fileInputReadable, reader: v}
	default:
		return fileInput{kind: fileInputInvalid}
	}
}

// FileService associates binary attachments with a grader queue record and
// produces the URL manifest handed to the external grader.
type FileService interface {
	// Attach persists one SubmissionFile per entry and returns each file's
	// deterministic delivery URL, keyed by the input name.
	Attach(ctx context.Context, record models.ExternalGraderDetail, files map[string]interface{}) (map[string]string, error)
	// ManifestForGrader maps each attached file's original name to its
	// delivery URL. No attachments yields an empty map, not an error.
	ManifestForGrader(ctx context.Context, record models.ExternalGraderDetail) (map[string]string, error)
}

type fileService struct {
	files  repository.SubmissionFileRepository
	logger zerolog.Logger
	now    func() time.Time
}

// NewFileService constructs a FileService instance.
func NewFileService(files repository.SubmissionFileRepository, logger zerolog.Logger) FileService {
	return &fileService{
		files:  files,
		logger: logger.With().Str("component", "file_service").Logger(),
		now:    time.Now,
	}
}

func (s *fileService) Attach(ctx context.Context, record models.ExternalGraderDetail, files map[string]interface{}) (map[string]string, error) {
	urls := make(map[string]string, len(files))

	for name, value := range files {
		content, err := resolveFileContent(name, classifyFileInput(value))
		if err != nil {
			return nil, err
		}

		file := models.SubmissionFile{
			UUID:                   uuid.NewString(),
			ExternalGraderDetailID: record.ID,
			OriginalFilename:       name,
			Content:                content,
			ContentType:            mimetype.Detect(content).String(),
			CreatedAt:              s.now(),
		}

		if err := s.files.Create(ctx, &file); err != nil {
			return nil, fmt.Errorf("failed to store file %s: %w", name, err)
		}

		urls[name] = file.DeliveryURL(record.QueueName)

		s.logger.Info().
			Str("queue_name", record.QueueName).
			Str("filename", name).
			Str("file_uuid", file.UUID).
			Msg("submission file attached")
	}

	return urls, nil
}

func resolveFileContent(name string, input fileInput) ([]byte, error) {
	switch input.kind {
	case fileInputBytes:
		return input.data, nil
	case fileInputReadable:
		content, err := io.ReadAll(input.reader)
		if err != nil {
			return nil, &FileProcessingError{Key: name, Err: err}
		}
		return content, nil
	default:
		return nil, &InvalidFileTypeError{Key: name}
	}
}

func (s *fileService) ManifestForGrader(ctx context.Context, record models.ExternalGraderDetail) (map[string]string, error) {
	files, err := s.files.ListForRecord(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files for record %d: %w", record.ID, err)
	}

	manifest := make(map[string]string, len(files))
	for _, file := range files {
		manifest[file.OriginalFilename] = file.DeliveryURL(record.QueueName)
	}

	return manifest, nil
}
