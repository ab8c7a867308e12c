package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/gradestack/submissions-api/internal/handler"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/service"
)

type stubAuth struct{}

func (stubAuth) Login(context.Context, string, string) (string, error) { return "token", nil }
func (stubAuth) Logout(context.Context, string) error                  { return nil }
func (stubAuth) Validate(context.Context, string) (service.Session, error) {
	return service.Session{Username: "worker", Role: models.UserRoleXQueue}, nil
}

type stubDispatcher struct {
	job service.GradingJob
	err error
}

func (s stubDispatcher) Claim(context.Context, string) (service.GradingJob, error) {
	return s.job, s.err
}

func (s stubDispatcher) SubmitResult(context.Context, uint, string, uint, string) error {
	return s.err
}

func (s stubDispatcher) ResetFailed(context.Context, string) (int64, error) { return 0, s.err }

func (s stubDispatcher) Enqueue(context.Context, models.Submission, string, string, uint) (models.ExternalGraderDetail, error) {
	return models.ExternalGraderDetail{}, s.err
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func claimApp(dispatcher service.QueueDispatcher) *fiber.App {
	app := fiber.New()
	h := handler.NewXQueueHandler(stubAuth{}, dispatcher, zerolog.Nop())
	group := app.Group("/xqueue")
	h.RegisterPublic(group)
	h.RegisterProtected(group)
	return app
}

func fetchReply(t *testing.T, app *fiber.App, method, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode, body
}

func TestXQueueReplyContract(t *testing.T) {
	replySchema := compileSchema(t, "xqueue_reply.schema.json")
	payloadSchema := compileSchema(t, "xqueue_payload.schema.json")

	dispatcher := stubDispatcher{job: service.GradingJob{
		SubmissionID:   7,
		PullKey:        "credential",
		QueueName:      "q1",
		GraderFileName: "grader.py",
		StudentID:      "anon-1",
		Answer:         json.RawMessage(`{"answer":"hello"}`),
		CreatedAt:      time.Now().UTC(),
		FileURLs:       map[string]string{"report.txt": "/q1/file-uuid"},
	}}
	app := claimApp(dispatcher)

	status, body := fetchReply(t, app, http.MethodGet, "/xqueue/get_submission?queue_name=q1")
	require.Equal(t, http.StatusOK, status)

	var envelope interface{}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.NoError(t, replySchema.Validate(envelope))

	content := envelope.(map[string]interface{})["content"].(string)
	var payload interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &payload))
	require.NoError(t, payloadSchema.Validate(payload))
}

func TestXQueueErrorReplyContract(t *testing.T) {
	replySchema := compileSchema(t, "xqueue_reply.schema.json")

	app := claimApp(stubDispatcher{err: service.ErrQueueEmpty})

	paths := []string{
		"/xqueue/get_submission",
		"/xqueue/get_submission?queue_name=q1",
	}
	for _, path := range paths {
		_, body := fetchReply(t, app, http.MethodGet, path)

		var envelope interface{}
		require.NoError(t, json.Unmarshal(body, &envelope))
		require.NoError(t, replySchema.Validate(envelope), "reply for %s must match the envelope contract", path)
	}

	status, body := fetchReply(t, app, http.MethodPost, "/xqueue/status")
	require.Equal(t, http.StatusOK, status)

	var envelope interface{}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.NoError(t, replySchema.Validate(envelope))
}
