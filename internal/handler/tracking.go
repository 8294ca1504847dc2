package handler

import (
	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TrackingHandler serves the customer-facing tracking page. Failures are
// masked with one generic message; couriers' internal errors are not shown
// to customers.
type TrackingHandler struct {
	resolver *service.Resolver
	logger   *zap.Logger
}

// NewTrackingHandler creates the tracking handler.
func NewTrackingHandler(resolver *service.Resolver, logger *zap.Logger) *TrackingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingHandler{resolver: resolver, logger: logger}
}

// Register mounts the tracking route.
func (h *TrackingHandler) Register(router fiber.Router) {
	router.Get("/track/:ref", h.Track)
}

// Track resolves a tracking id, order id or waybill into the tracking view.
func (h *TrackingHandler) Track(c *fiber.Ctx) error {
	ref := c.Params("ref")

	view, err := h.resolver.Resolve(c.UserContext(), ref)
	if err != nil {
		status := fiber.StatusNotFound
		if !domain.IsCode(err, domain.ENOTFOUND) {
			h.logger.Error("tracking resolution failed", zap.String("ref", ref), zap.Error(err))
			status = domain.HTTPStatus(domain.ErrorCode(err))
		}
		return c.Status(status).JSON(ErrorResponse{
			Code:    domain.ErrorCode(err),
			Message: "Tracking information is not available for " + ref,
			RayID:   rayID(c),
		})
	}
	return c.JSON(view)
}
