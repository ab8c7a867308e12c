package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/handler"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/service"
)

// conflictDispatcher simulates a row lock held by a concurrent worker on
// every queue operation.
type conflictDispatcher struct{}

func (conflictDispatcher) Claim(context.Context, string) (service.GradingJob, error) {
	return service.GradingJob{}, service.ErrQueueConflict
}

func (conflictDispatcher) SubmitResult(context.Context, uint, string, uint, string) error {
	return service.ErrQueueConflict
}

func (conflictDispatcher) ResetFailed(context.Context, string) (int64, error) {
	return 0, service.ErrQueueConflict
}

func (conflictDispatcher) Enqueue(context.Context, models.Submission, string, string, uint) (models.ExternalGraderDetail, error) {
	return models.ExternalGraderDetail{}, service.ErrQueueConflict
}

func setupConflictApp() *fiber.App {
	app := fiber.New()
	h := handler.NewXQueueHandler(nil, conflictDispatcher{}, zerolog.Nop())
	group := app.Group("/xqueue")
	h.RegisterProtected(group)
	return app
}

func TestGetSubmissionHeldLockReturnsConflict(t *testing.T) {
	app := setupConflictApp()

	req := httptest.NewRequest(http.MethodGet, "/xqueue/get_submission?queue_name=q1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	reply := decodeReply(t, resp)
	require.Equal(t, 1, reply.ReturnCode)
	require.Equal(t, "Submission already in process", reply.Content)
}

func TestPutResultHeldLockReturnsConflict(t *testing.T) {
	app := setupConflictApp()

	header, err := json.Marshal(dto.XQueueHeader{SubmissionID: 7, SubmissionKey: "key"})
	require.NoError(t, err)
	body, err := json.Marshal(dto.PutResultRequest{
		XQueueHeader: string(header),
		XQueueBody:   `{"score": 8}`,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/xqueue/put_result", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	reply := decodeReply(t, resp)
	require.Equal(t, 1, reply.ReturnCode)
	require.Equal(t, "Submission already in process", reply.Content)
}
