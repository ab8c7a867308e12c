package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/service"
	"github.com/gradestack/submissions-api/internal/utils"
)

// ScoreHandler manages the staff-facing scoring endpoints.
type ScoreHandler struct {
	scores     service.ScoreService
	dispatcher service.QueueDispatcher
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewScoreHandler builds a score handler instance.
func NewScoreHandler(scores service.ScoreService, dispatcher service.QueueDispatcher, validator *validator.Validate, logger zerolog.Logger) *ScoreHandler {
	return &ScoreHandler{
		scores:     scores,
		dispatcher: dispatcher,
		validator:  validator,
		logger:     logger.With().Str("component", "score_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ScoreHandler) Register(router fiber.Router) {
	router.Get("", h.get)
	router.Post("", h.set)
	router.Post("/reset", h.reset)
	router.Get("/course/:course_id/student/:student_id", h.courseScores)
	router.Get("/submission/:uuid", h.latestForSubmission)
	router.Post("/queues/:queue_name/reset-failed", h.resetFailed)
}

func (h *ScoreHandler) set(c *fiber.Ctx) error {
	var payload dto.SetScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	score, err := h.scores.SetScore(c.UserContext(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "score set", dto.NewScoreResponse(score, payload.SubmissionUUID))
}

func (h *ScoreHandler) reset(c *fiber.Ctx) error {
	var payload dto.ResetScoreRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := h.scores.ResetScore(c.UserContext(), payload); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "score reset", nil)
}

func (h *ScoreHandler) get(c *fiber.Ctx) error {
	studentID := c.Query("student_id")
	courseID := c.Query("course_id")
	itemID := c.Query("item_id")
	if studentID == "" || courseID == "" || itemID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "student_id, course_id and item_id are required")
	}

	score, err := h.scores.GetScore(c.UserContext(), studentID, courseID, itemID)
	if err != nil {
		return h.handleError(c, err)
	}
	if score == nil {
		return utils.SendSuccess(c, "no score", nil)
	}

	return utils.SendSuccess(c, "score retrieved", dto.NewScoreResponse(*score, ""))
}

func (h *ScoreHandler) courseScores(c *fiber.Ctx) error {
	scores, err := h.scores.GetCourseScores(c.UserContext(), c.Params("course_id"), c.Params("student_id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "scores retrieved", scores)
}

func (h *ScoreHandler) latestForSubmission(c *fiber.Ctx) error {
	uuid := c.Params("uuid")
	score, err := h.scores.LatestScoreForSubmission(c.UserContext(), uuid)
	if err != nil {
		return h.handleError(c, err)
	}
	if score == nil {
		return utils.SendSuccess(c, "no score", nil)
	}

	return utils.SendSuccess(c, "score retrieved", dto.NewScoreResponse(*score, uuid))
}

func (h *ScoreHandler) resetFailed(c *fiber.Ctx) error {
	count, err := h.dispatcher.ResetFailed(c.UserContext(), c.Params("queue_name"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "failed records reset", fiber.Map{"count": count})
}

func (h *ScoreHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
