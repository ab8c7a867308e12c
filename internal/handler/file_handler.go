package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/repository"
	"github.com/gradestack/submissions-api/internal/utils"
)

// FileHandler serves grader attachments at their delivery URL,
// /{queue_name}/{uuid}. The queue name is part of the path for
// legacy-compatibility only; the uuid alone identifies the file.
type FileHandler struct {
	files  repository.SubmissionFileRepository
	logger zerolog.Logger
}

// NewFileHandler builds a file handler instance.
func NewFileHandler(files repository.SubmissionFileRepository, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		files:  files,
		logger: logger.With().Str("component", "file_handler").Logger(),
	}
}

// Register attaches the delivery route. It must be registered last so that
// static routes keep precedence over the two wildcard segments.
func (h *FileHandler) Register(router fiber.Router) {
	router.Get("/:queue_name/:uuid", h.serve)
}

func (h *FileHandler) serve(c *fiber.Ctx) error {
	file, err := h.files.GetByUUID(c.UserContext(), c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "file not found")
		}
		h.logger.Error().Err(err).Str("uuid", c.Params("uuid")).Msg("failed to load file")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	if file.ContentType != "" {
		c.Set(fiber.HeaderContentType, file.ContentType)
	}
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+file.OriginalFilename+`"`)

	return c.Send(file.Content)
}
