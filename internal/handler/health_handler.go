package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gradestack/submissions-api/internal/config"
	"github.com/gradestack/submissions-api/internal/utils"
)

// HealthResponse is the liveness payload. Watchdogs that restart stalled
// grader pollers key off the status field only.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
}

// HealthCheck reports liveness along with which deployment answered.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
