package handler

import (
	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminHandler serves the back-office order operations: shipment creation,
// status updates, cancellation, pickup scheduling and serviceability checks.
// Authentication sits in front of these routes at the gateway.
type AdminHandler struct {
	orchestrator *service.Orchestrator
	statuses     *service.StatusService
	validate     *validator.Validate
	logger       *zap.Logger
}

// NewAdminHandler creates the admin order handler.
func NewAdminHandler(orchestrator *service.Orchestrator, statuses *service.StatusService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		orchestrator: orchestrator,
		statuses:     statuses,
		validate:     validator.New(),
		logger:       logger,
	}
}

// Register mounts the admin routes.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Post("/orders/:orderId/shipment", h.CreateShipment)
	router.Delete("/orders/:orderId/shipment", h.CancelShipment)
	router.Post("/orders/:orderId/pickup", h.SchedulePickup)
	router.Post("/orders/:orderId/status", h.UpdateStatus)
	router.Post("/orders/:orderId/cancel", h.CancelOrder)
	router.Get("/serviceability/:pincode", h.CheckServiceability)
}

type createShipmentRequest struct {
	Provider string                   `json:"provider" validate:"omitempty,oneof=shiprocket ekart delhivery"`
	Package  *service.PackageOverride `json:"package"`
}

// CreateShipment dispatches an order with the requested (or default) courier.
func (h *AdminHandler) CreateShipment(c *fiber.Ctx) error {
	orderID := c.Params("orderId")

	var req createShipmentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return writeInvalid(c, "malformed request body")
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return writeInvalid(c, err.Error())
	}
	if req.Package != nil {
		if err := h.validate.Struct(req.Package); err != nil {
			return writeInvalid(c, err.Error())
		}
	}

	result, err := h.orchestrator.CreateShipment(c.UserContext(), orderID, domain.CourierCode(req.Provider), req.Package)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// CancelShipment cancels the courier-side shipment without touching the
// order's status.
func (h *AdminHandler) CancelShipment(c *fiber.Ctx) error {
	if err := h.orchestrator.CancelCourierShipment(c.UserContext(), c.Params("orderId")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": true})
}

// SchedulePickup books a courier pickup for an order's shipment.
func (h *AdminHandler) SchedulePickup(c *fiber.Ctx) error {
	result, err := h.orchestrator.SchedulePickup(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// UpdateStatus applies a state-machine transition to an order.
func (h *AdminHandler) UpdateStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return writeInvalid(c, "malformed request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return writeInvalid(c, err.Error())
	}

	order, err := h.statuses.UpdateOrderStatus(c.UserContext(), c.Params("orderId"), domain.OrderStatus(req.Status), req.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(order)
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelOrder cancels an order. The reason is mandatory.
func (h *AdminHandler) CancelOrder(c *fiber.Ctx) error {
	var req cancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return writeInvalid(c, "malformed request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return writeInvalid(c, "cancellation reason is required")
	}

	order, err := h.statuses.CancelOrder(c.UserContext(), c.Params("orderId"), req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(order)
}

// CheckServiceability reports courier coverage at a destination pincode.
func (h *AdminHandler) CheckServiceability(c *fiber.Ctx) error {
	pincode := c.Params("pincode")
	if len(pincode) != 6 {
		return writeInvalid(c, "pincode must be 6 digits")
	}

	result, err := h.orchestrator.CheckServiceability(c.UserContext(), domain.CourierCode(c.Query("provider")), pincode)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(result)
}
