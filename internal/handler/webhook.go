package handler

import (
	"crypto/subtle"
	"strings"

	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/service"
	"github.com/naturemedica/commerce/internal/store"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// deliveredStatuses are courier status strings treated as a delivery event,
// across providers. Matched case-insensitively.
var deliveredStatuses = map[string]bool{
	"delivered": true,
	"dlvd":      true,
	"dl":        true,
}

// WebhookHandler ingests courier status callbacks. Only delivery events
// move an order; everything else is acknowledged and dropped, since scans
// are fetched live by the resolver.
type WebhookHandler struct {
	repo     store.OrderRepository
	statuses *service.StatusService
	token    string
	logger   *zap.Logger
}

// NewWebhookHandler creates the courier webhook handler. token guards the
// endpoint; couriers are configured to send it in X-Webhook-Token.
func NewWebhookHandler(repo store.OrderRepository, statuses *service.StatusService, token string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{repo: repo, statuses: statuses, token: token, logger: logger}
}

// Register mounts the webhook route.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/webhooks/courier/:provider", h.CourierEvent)
}

type courierEventRequest struct {
	AWB     string `json:"awb"`
	OrderID string `json:"order_id"`
	Status  string `json:"current_status"`
}

// CourierEvent handles one courier callback.
func (h *WebhookHandler) CourierEvent(c *fiber.Ctx) error {
	if h.token == "" || subtle.ConstantTimeCompare([]byte(c.Get("X-Webhook-Token")), []byte(h.token)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Code:    domain.EAUTH,
			Message: "Invalid webhook token",
		})
	}

	var req courierEventRequest
	if err := c.BodyParser(&req); err != nil {
		return writeInvalid(c, "malformed request body")
	}

	ref := req.AWB
	if ref == "" {
		ref = req.OrderID
	}
	if ref == "" {
		return writeInvalid(c, "awb or order_id is required")
	}

	if !deliveredStatuses[strings.ToLower(req.Status)] {
		// Acknowledged but not acted on.
		h.logger.Debug("ignoring courier event",
			zap.String("provider", c.Params("provider")),
			zap.String("status", req.Status),
		)
		return c.JSON(fiber.Map{"processed": false})
	}

	order, err := h.repo.FindByTrackingRef(c.UserContext(), ref)
	if err != nil {
		return writeError(c, err)
	}
	if order.Status == domain.StatusDelivered {
		return c.JSON(fiber.Map{"processed": false})
	}

	if _, err := h.statuses.UpdateOrderStatus(c.UserContext(), order.OrderID, domain.StatusDelivered, "Delivery confirmed by courier"); err != nil {
		h.logger.Error("webhook delivered transition failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return writeError(c, err)
	}

	return c.JSON(fiber.Map{"processed": true})
}
