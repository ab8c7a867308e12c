package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gradestack/submissions-api/internal/config"
	"github.com/gradestack/submissions-api/internal/dto"
	"github.com/gradestack/submissions-api/internal/handler"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
	"github.com/gradestack/submissions-api/internal/router"
	"github.com/gradestack/submissions-api/internal/service"
)

type xqueueTestEnv struct {
	app     *fiber.App
	db      *gorm.DB
	service service.SubmissionService
}

func setupXQueueApp(t *testing.T) *xqueueTestEnv {
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

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	studentItemRepo := repository.NewStudentItemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	graderQueueRepo := repository.NewGraderQueueRepository(db)
	fileRepo := repository.NewSubmissionFileRepository(db)
	userRepo := repository.NewUserRepository(db)

	fileService := service.NewFileService(fileRepo, logger)
	scoreService := service.NewScoreService(db, scoreRepo, submissionRepo, studentItemRepo, nil, logger)
	dispatcher := service.NewQueueDispatcher(db, graderQueueRepo, fileService, scoreService, 5*time.Minute, 5, logger)
	submissionService := service.NewSubmissionService(submissionRepo, studentItemRepo, dispatcher, fileService, nil, validate, 0, logger)
	authService := service.NewAuthService(userRepo, redisClient, time.Hour, logger)

	require.NoError(t, service.EnsureUser(context.Background(), userRepo, "worker", "hunter2", models.UserRoleXQueue))

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		XQueueHandler:     handler.NewXQueueHandler(authService, dispatcher, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		ScoreHandler:      handler.NewScoreHandler(scoreService, dispatcher, validate, logger),
		FileHandler:       handler.NewFileHandler(fileRepo, logger),
		AuthService:       authService,
	})

	return &xqueueTestEnv{app: app, db: db, service: submissionService}
}

func (env *xqueueTestEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	body, err := json.Marshal(dto.LoginRequest{Username: "worker", Password: "hunter2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/xqueue/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reply := decodeReply(t, resp)
	require.Equal(t, 0, reply.ReturnCode)
	require.Equal(t, "Logged in", reply.Content)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "sessionid" {
			return cookie
		}
	}
	t.Fatal("login response carried no session cookie")
	return nil
}

func (env *xqueueTestEnv) enqueue(t *testing.T, queueName string) dto.SubmissionResponse {
	t.Helper()

	created, err := env.service.Create(context.Background(), dto.SubmissionCreateRequest{
		StudentID:      "student-1",
		CourseID:       "course-1",
		ItemID:         "item-" + queueName,
		ItemType:       "sga",
		Answer:         json.RawMessage(`{"answer":"hello"}`),
		QueueName:      queueName,
		GraderFileName: "grader.py",
		PointsPossible: 10,
	})
	require.NoError(t, err)
	return created
}

func decodeReply(t *testing.T, resp *http.Response) dto.XQueueReply {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var reply dto.XQueueReply
	require.NoError(t, json.Unmarshal(body, &reply))
	return reply
}

func xqueueGet(t *testing.T, app *fiber.App, path string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func xqueuePost(t *testing.T, app *fiber.App, path string, payload interface{}, cookie *http.Cookie) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestXQueueLoginRejectsBadCredentials(t *testing.T) {
	env := setupXQueueApp(t)

	resp := xqueuePost(t, env.app, "/xqueue/login", dto.LoginRequest{Username: "worker", Password: "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, 1, reply.ReturnCode)

	resp = xqueuePost(t, env.app, "/xqueue/login", dto.LoginRequest{Username: "worker"}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestXQueueRequiresSession(t *testing.T) {
	env := setupXQueueApp(t)

	resp := xqueueGet(t, env.app, "/xqueue/get_submission?queue_name=q1", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, 1, reply.ReturnCode)
	require.Equal(t, "Authentication credentials were not provided", reply.Content)
}

func TestXQueueStatusHeartbeat(t *testing.T) {
	env := setupXQueueApp(t)
	cookie := env.login(t)

	resp := xqueuePost(t, env.app, "/xqueue/status", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, 0, reply.ReturnCode)
	require.Equal(t, "OK", reply.Content)
}

func TestXQueueGetSubmissionRequiresQueueName(t *testing.T) {
	env := setupXQueueApp(t)
	cookie := env.login(t)

	resp := xqueueGet(t, env.app, "/xqueue/get_submission", cookie)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, 1, reply.ReturnCode)
	require.Equal(t, "'get_submission' must provide parameter 'queue_name'", reply.Content)
}

func TestXQueueGetSubmissionEmptyQueue(t *testing.T) {
	env := setupXQueueApp(t)
	cookie := env.login(t)

	resp := xqueueGet(t, env.app, "/xqueue/get_submission?queue_name=q1", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, 1, reply.ReturnCode)
	require.Equal(t, "Queue 'q1' is empty", reply.Content)
}

func TestXQueueClaimAndResultRoundTrip(t *testing.T) {
	env := setupXQueueApp(t)
	cookie := env.login(t)
	env.enqueue(t, "q1")

	resp := xqueueGet(t, env.app, "/xqueue/get_submission?queue_name=q1", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, 0, reply.ReturnCode)

	// the content is a JSON string of nested JSON strings
	var payload dto.XQueuePayload
	require.NoError(t, json.Unmarshal([]byte(reply.Content), &payload))

	var header dto.XQueueHeader
	require.NoError(t, json.Unmarshal([]byte(payload.Header), &header))
	require.NotZero(t, header.SubmissionID)
	require.NotEmpty(t, header.SubmissionKey)

	var body dto.XQueueSubmissionBody
	require.NoError(t, json.Unmarshal([]byte(payload.Body), &body))
	require.JSONEq(t, `{"answer":"hello"}`, body.StudentResponse)

	var graderPayload dto.XQueueGraderPayload
	require.NoError(t, json.Unmarshal([]byte(body.GraderPayload), &graderPayload))
	require.Equal(t, "grader.py", graderPayload.Grader)

	var studentInfo dto.XQueueStudentInfo
	require.NoError(t, json.Unmarshal([]byte(body.StudentInfo), &studentInfo))
	require.Equal(t, "student-1", studentInfo.AnonymousStudentID)

	// legacy graders parse submission_time as integer epoch seconds
	submittedAt, err := strconv.ParseInt(studentInfo.SubmissionTime, 10, 64)
	require.NoError(t, err)
	require.InDelta(t, time.Now().Unix(), submittedAt, 60)

	var files map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload.Files), &files))
	require.Empty(t, files)

	resp = xqueuePost(t, env.app, "/xqueue/put_result", dto.PutResultRequest{
		XQueueHeader: payload.Header,
		XQueueBody:   `{"score": 8}`,
	}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply = decodeReply(t, resp)
	require.Equal(t, 0, reply.ReturnCode)
	require.Equal(t, "", reply.Content)

	var record models.ExternalGraderDetail
	require.NoError(t, env.db.Where("submission_id = ?", header.SubmissionID).First(&record).Error)
	require.Equal(t, models.GraderStatusRetired, record.Status)
}

func TestXQueuePutResultValidation(t *testing.T) {
	env := setupXQueueApp(t)
	cookie := env.login(t)
	env.enqueue(t, "q1")

	resp := xqueueGet(t, env.app, "/xqueue/get_submission?queue_name=q1", cookie)
	reply := decodeReply(t, resp)
	var payload dto.XQueuePayload
	require.NoError(t, json.Unmarshal([]byte(reply.Content), &payload))
	var header dto.XQueueHeader
	require.NoError(t, json.Unmarshal([]byte(payload.Header), &header))

	// malformed header
	resp = xqueuePost(t, env.app, "/xqueue/put_result", dto.PutResultRequest{
		XQueueHeader: "not json",
		XQueueBody:   `{"score": 8}`,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	malformed := decodeReply(t, resp)
	require.Equal(t, "Incorrect reply format", malformed.Content)

	// missing score
	resp = xqueuePost(t, env.app, "/xqueue/put_result", dto.PutResultRequest{
		XQueueHeader: payload.Header,
		XQueueBody:   `{}`,
	}, cookie)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown submission id
	ghostHeader, err := json.Marshal(dto.XQueueHeader{SubmissionID: 9999, SubmissionKey: "key"})
	require.NoError(t, err)
	resp = xqueuePost(t, env.app, "/xqueue/put_result", dto.PutResultRequest{
		XQueueHeader: string(ghostHeader),
		XQueueBody:   `{"score": 8}`,
	}, cookie)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	missing := decodeReply(t, resp)
	require.Equal(t, "Submission does not exist", missing.Content)

	// wrong credential
	badHeader, err := json.Marshal(dto.XQueueHeader{SubmissionID: header.SubmissionID, SubmissionKey: "wrong"})
	require.NoError(t, err)
	resp = xqueuePost(t, env.app, "/xqueue/put_result", dto.PutResultRequest{
		XQueueHeader: string(badHeader),
		XQueueBody:   `{"score": 8}`,
	}, cookie)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	forbidden := decodeReply(t, resp)
	require.Equal(t, "Incorrect key for submission", forbidden.Content)
}

func TestXQueueLogout(t *testing.T) {
	env := setupXQueueApp(t)
	cookie := env.login(t)

	resp := xqueuePost(t, env.app, "/xqueue/logout", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decodeReply(t, resp)
	require.Equal(t, "Goodbye", reply.Content)

	resp = xqueuePost(t, env.app, "/xqueue/status", nil, cookie)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFileDelivery(t *testing.T) {
	env := setupXQueueApp(t)

	created, err := env.service.Create(context.Background(), dto.SubmissionCreateRequest{
		StudentID:      "student-1",
		CourseID:       "course-1",
		ItemID:         "item-files",
		ItemType:       "sga",
		Answer:         json.RawMessage(`{"answer":"hello"}`),
		QueueName:      "q1",
		GraderFileName: "grader.py",
		PointsPossible: 10,
		Files:          map[string]string{"report.txt": "aGVsbG8gZ3JhZGVy"},
	})
	require.NoError(t, err)
	require.Len(t, created.FileURLs, 1)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, created.FileURLs["report.txt"], nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "hello grader", string(content))
}
