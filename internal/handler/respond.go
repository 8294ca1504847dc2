package handler

import (
	"github.com/naturemedica/commerce/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RayID   string `json:"ray_id,omitempty"`
}

// writeError renders a domain error with its mapped HTTP status. Internal
// errors are masked with a generic message; the detail stays in the logs.
func writeError(c *fiber.Ctx, err error) error {
	code := domain.ErrorCode(err)
	return c.Status(domain.HTTPStatus(code)).JSON(ErrorResponse{
		Code:    code,
		Message: domain.ErrorMessage(err),
		RayID:   rayID(c),
	})
}

// writeInvalid renders a 400 with an explicit message, for request-shape
// failures that never reach the domain.
func writeInvalid(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Code:    domain.EINVALID,
		Message: message,
		RayID:   rayID(c),
	})
}

func rayID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
