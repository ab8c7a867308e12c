package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gradestack/submissions-api/internal/config"
	"github.com/gradestack/submissions-api/internal/handler"
	"github.com/gradestack/submissions-api/internal/middleware"
	"github.com/gradestack/submissions-api/internal/models"
	"github.com/gradestack/submissions-api/internal/observability"
	"github.com/gradestack/submissions-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	XQueueHandler     *handler.XQueueHandler
	SubmissionHandler *handler.SubmissionHandler
	ScoreHandler      *handler.ScoreHandler
	FileHandler       *handler.FileHandler
	AuthService       service.AuthService
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application. The xqueue
// surface keeps its legacy flat paths under /xqueue; the staff REST surface
// lives under /api/v1.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Legacy worker protocol. Login is the only route without a session.
	if deps.XQueueHandler != nil {
		xqueue := app.Group("/xqueue")
		deps.XQueueHandler.RegisterPublic(xqueue)

		protected := xqueue.Group("", middleware.SessionProtected(deps.AuthService, models.UserRoleXQueue, models.UserRoleStaff))
		deps.XQueueHandler.RegisterProtected(protected)
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.ScoreHandler != nil {
		scores := api.Group("/scores", jwtMiddleware)
		deps.ScoreHandler.Register(scores)
	}

	// File delivery keeps the legacy root-level /{queue_name}/{uuid} shape, so
	// it must come after every static route.
	if deps.FileHandler != nil {
		deps.FileHandler.Register(app)
	}
}
