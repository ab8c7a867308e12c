package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/gradestack/submissions-api/internal/config"
	"github.com/gradestack/submissions-api/internal/database"
	"github.com/gradestack/submissions-api/internal/handler"
	"github.com/gradestack/submissions-api/internal/middleware"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/repository"
	"github.com/gradestack/submissions-api/internal/router"
	"github.com/gradestack/submissions-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.StudentItem{},
		&models.Submission{},
		&models.Score{},
		&models.ScoreSummary{},
		&models.ScoreAnnotation{},
		&models.ExternalGraderDetail{},
		&models.SubmissionFile{},
		&models.User{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentItemRepo := repository.NewStudentItemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	graderQueueRepo := repository.NewGraderQueueRepository(db)
	fileRepo := repository.NewSubmissionFileRepository(db)
	userRepo := repository.NewUserRepository(db)

	cache := service.NewRedisSubmissionCache(redisClient, cfg.CacheTTL, logger)
	fileService := service.NewFileService(fileRepo, logger)
	scoreService := service.NewScoreService(db, scoreRepo, submissionRepo, studentItemRepo, cache, logger)
	dispatcher := service.NewQueueDispatcher(db, graderQueueRepo, fileService, scoreService, cfg.ReclaimTimeout, cfg.GraderMaxRetries, logger)
	submissionService := service.NewSubmissionService(submissionRepo, studentItemRepo, dispatcher, fileService, cache, validate, cfg.MaxAnswerBytes, logger)
	authService := service.NewAuthService(userRepo, redisClient, cfg.SessionTTL, logger)

	if natsConn != nil {
		scoreService.RegisterObserver(service.NewNATSScorePublisher(natsConn, cfg.NATSSubject, logger))
	}

	if err := service.EnsureUser(context.Background(), userRepo, cfg.WorkerUsername, cfg.WorkerPassword, models.UserRoleXQueue); err != nil {
		log.Fatalf("failed to bootstrap worker account: %v", err)
	}

	xqueueHandler := handler.NewXQueueHandler(authService, dispatcher, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	scoreHandler := handler.NewScoreHandler(scoreService, dispatcher, validate, logger)
	fileHandler := handler.NewFileHandler(fileRepo, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		XQueueHandler:     xqueueHandler,
		SubmissionHandler: submissionHandler,
		ScoreHandler:      scoreHandler,
		FileHandler:       fileHandler,
		AuthService:       authService,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
