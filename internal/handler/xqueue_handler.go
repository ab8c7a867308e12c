package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/middleware"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/service"
	"github.com/gradestack/submissions-api/internal/utils"
)

// XQueueHandler serves the legacy grader-worker protocol. Field names, error
// messages and status codes follow the wire contract the xqueue-watcher
// client was written against, so they must not be changed casually.
type XQueueHandler struct {
	auth       service.AuthService
	dispatcher service.QueueDispatcher
	logger     zerolog.Logger
}

// NewXQueueHandler builds an xqueue handler instance.
func NewXQueueHandler(auth service.AuthService, dispatcher service.QueueDispatcher, logger zerolog.Logger) *XQueueHandler {
	return &XQueueHandler{
		auth:       auth,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "xqueue_handler").Logger(),
	}
}

// Register attaches the worker-facing routes. Everything except login runs
// behind the session middleware installed by the router.
func (h *XQueueHandler) RegisterPublic(router fiber.Router) {
	router.Post("/login", h.login)
}

// RegisterProtected attaches the routes requiring an authenticated session.
func (h *XQueueHandler) RegisterProtected(router fiber.Router) {
	router.Post("/logout", h.logout)
	router.Get("/get_submission", h.getSubmission)
	router.Post("/put_result", h.putResult)
	router.Post("/status", h.status)
}

func (h *XQueueHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendXQueueError(c, fiber.StatusBadRequest, "Insufficient login info")
	}
	if payload.Username == "" || payload.Password == "" {
		return utils.SendXQueueError(c, fiber.StatusBadRequest, "Insufficient login info")
	}

	token, err := h.auth.Login(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return utils.SendXQueueError(c, fiber.StatusUnauthorized, "Incorrect login credentials")
		}
		h.logger.Error().Err(err).Msg("login failed")
		return utils.SendXQueueError(c, fiber.StatusInternalServerError, "Internal error")
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	return utils.SendXQueue(c, "Logged in")
}

func (h *XQueueHandler) logout(c *fiber.Ctx) error {
	token := c.Cookies(middleware.SessionCookieName)
	if err := h.auth.Logout(c.UserContext(), token); err != nil {
		h.logger.Warn().Err(err).Msg("logout failed")
	}
	c.ClearCookie(middleware.SessionCookieName)

	return utils.SendXQueue(c, "Goodbye")
}

func (h *XQueueHandler) getSubmission(c *fiber.Ctx) error {
	queueName := c.Query("queue_name")
	if queueName == "" {
		return utils.SendXQueueError(c, fiber.StatusBadRequest, "'get_submission' must provide parameter 'queue_name'")
	}

	job, err := h.dispatcher.Claim(c.UserContext(), queueName)
	if err != nil {
		var invalid *models.InvalidTransitionError
		switch {
		case errors.Is(err, service.ErrQueueEmpty):
			return utils.SendXQueueFailure(c, fmt.Sprintf("Queue '%s' is empty", queueName))
		case errors.Is(err, service.ErrQueueConflict):
			return utils.SendXQueueError(c, fiber.StatusConflict, "Submission already in process")
		case errors.As(err, &invalid):
			return utils.SendXQueueError(c, fiber.StatusBadRequest, invalid.Error())
		default:
			h.logger.Error().Err(err).Str("queue_name", queueName).Msg("claim failed")
			return utils.SendXQueueError(c, fiber.StatusInternalServerError, "Internal error")
		}
	}

	content, err := encodeGradingJob(job)
	if err != nil {
		h.logger.Error().Err(err).Uint("submission_id", job.SubmissionID).Msg("failed to encode grading payload")
		return utils.SendXQueueError(c, fiber.StatusInternalServerError, "Internal error")
	}

	return utils.SendXQueue(c, content)
}

// encodeGradingJob builds the nested wire payload: the content is a JSON
// string of {xqueue_header, xqueue_body, xqueue_files}, each of which is
// itself a serialized JSON document.
func encodeGradingJob(job service.GradingJob) (string, error) {
	header, err := json.Marshal(dto.XQueueHeader{
		SubmissionID:  job.SubmissionID,
		SubmissionKey: job.PullKey,
	})
	if err != nil {
		return "", err
	}

	graderPayload, err := json.Marshal(dto.XQueueGraderPayload{Grader: job.GraderFileName})
	if err != nil {
		return "", err
	}

	// submission_time is epoch seconds as a string; legacy graders parse it
	// as an integer.
	studentInfo, err := json.Marshal(dto.XQueueStudentInfo{
		AnonymousStudentID: job.StudentID,
		SubmissionTime:     strconv.FormatInt(job.CreatedAt.Unix(), 10),
		RandomSeed:         1,
	})
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(dto.XQueueSubmissionBody{
		GraderPayload:   string(graderPayload),
		StudentInfo:     string(studentInfo),
		StudentResponse: string(job.Answer),
	})
	if err != nil {
		return "", err
	}

	files := job.FileURLs
	if files == nil {
		files = map[string]string{}
	}
	fileManifest, err := json.Marshal(files)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(dto.XQueuePayload{
		Header: string(header),
		Body:   string(body),
		Files:  string(fileManifest),
	})
	if err != nil {
		return "", err
	}

	return string(payload), nil
}

func (h *XQueueHandler) putResult(c *fiber.Ctx) error {
	var payload dto.PutResultRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendXQueueError(c, fiber.StatusBadRequest, "Incorrect reply format")
	}

	header, points, ok := parseGraderReply(payload)
	if !ok {
		return utils.SendXQueueError(c, fiber.StatusBadRequest, "Incorrect reply format")
	}

	err := h.dispatcher.SubmitResult(c.UserContext(), header.SubmissionID, header.SubmissionKey, points, payload.XQueueBody)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendXQueueError(c, fiber.StatusNotFound, "Submission does not exist")
		case errors.Is(err, service.ErrIncorrectKey):
			return utils.SendXQueueError(c, fiber.StatusForbidden, "Incorrect key for submission")
		case errors.Is(err, service.ErrQueueConflict):
			return utils.SendXQueueError(c, fiber.StatusConflict, "Submission already in process")
		default:
			h.logger.Error().Err(err).Uint("submission_id", header.SubmissionID).Msg("result post failed")
			return utils.SendXQueueError(c, fiber.StatusInternalServerError, "Internal error")
		}
	}

	return utils.SendXQueue(c, "")
}

// parseGraderReply unwraps the doubly-encoded result post. Any structural
// problem, missing key or out-of-range score is a single client error; the
// legacy client distinguishes no finer than "Incorrect reply format".
func parseGraderReply(payload dto.PutResultRequest) (dto.XQueueHeader, uint, bool) {
	if payload.XQueueHeader == "" || payload.XQueueBody == "" {
		return dto.XQueueHeader{}, 0, false
	}

	var header dto.XQueueHeader
	if err := json.Unmarshal([]byte(payload.XQueueHeader), &header); err != nil {
		return dto.XQueueHeader{}, 0, false
	}
	if header.SubmissionID == 0 || header.SubmissionKey == "" {
		return dto.XQueueHeader{}, 0, false
	}

	var body dto.XQueueScoreBody
	if err := json.Unmarshal([]byte(payload.XQueueBody), &body); err != nil {
		return dto.XQueueHeader{}, 0, false
	}
	if body.Score == nil || *body.Score < 0 || math.IsNaN(*body.Score) || math.IsInf(*body.Score, 0) {
		return dto.XQueueHeader{}, 0, false
	}

	return header, uint(math.Round(*body.Score)), true
}

func (h *XQueueHandler) status(c *fiber.Ctx) error {
	return utils.SendXQueue(c, "OK")
}
