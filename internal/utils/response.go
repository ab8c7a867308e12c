package utils

import "github.com/gofiber/fiber/v2"

// APIResponse describes the common structure for REST API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

// XQueueReturnCode values: 0 on success, 1 on failure, per the legacy wire
// format.
const (
	XQueueSuccess = 0
	XQueueFailure = 1
)

type xqueueReply struct {
	ReturnCode int    `json:"return_code"`
	Content    string `json:"content"`
}

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}

	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
	})
}

// SendXQueue composes a success reply in the xqueue format.
func SendXQueue(c *fiber.Ctx, content string) error {
	return c.Status(fiber.StatusOK).JSON(xqueueReply{
		ReturnCode: XQueueSuccess,
		Content:    content,
	})
}

// SendXQueueError composes a failure reply in the xqueue format with the
// given HTTP status.
func SendXQueueError(c *fiber.Ctx, status int, content string) error {
	return c.Status(status).JSON(xqueueReply{
		ReturnCode: XQueueFailure,
		Content:    content,
	})
}

// SendXQueueFailure composes a 200 reply carrying a failure return code, used
// where the legacy protocol reports soft failures (e.g. empty queue) without
// an error status.
func SendXQueueFailure(c *fiber.Ctx, content string) error {
	return c.Status(fiber.StatusOK).JSON(xqueueReply{
		ReturnCode: XQueueFailure,
		Content:    content,
	})
}
