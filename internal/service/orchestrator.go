package service

import (
	"context"
	"strconv"
	"time"

	"github.com/naturemedica/commerce/internal/courier"
	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/notify"
	"github.com/naturemedica/commerce/internal/store"
	"github.com/naturemedica/commerce/internal/telemetry"

	"go.uber.org/zap"
)

// ShippingConfig carries seller-level shipping defaults.
type ShippingConfig struct {
	DefaultProvider    domain.CourierCode
	DefaultWeightGrams int32
	DefaultLengthCm    int32
	DefaultWidthCm     int32
	DefaultHeightCm    int32
	GSTRate            float64
	Seller             courier.SellerDetails
}

// PackageOverride lets an admin override the computed parcel dimensions for
// a single shipment. Zero fields fall back to the computed values.
type PackageOverride struct {
	WeightGrams int32 `json:"weight_grams" validate:"omitempty,gt=0"`
	LengthCm    int32 `json:"length_cm" validate:"omitempty,gt=0"`
	WidthCm     int32 `json:"width_cm" validate:"omitempty,gt=0"`
	HeightCm    int32 `json:"height_cm" validate:"omitempty,gt=0"`
}

// CreateShipmentResult reports a dispatched shipment. Persisted is false when
// the courier shipment exists but the local write failed; Warning carries the
// reconciliation hint in that case.
type CreateShipmentResult struct {
	Order     *domain.Order `json:"order"`
	Persisted bool          `json:"persisted"`
	Warning   string        `json:"warning,omitempty"`
}

// Orchestrator turns a confirmed order into a dispatched courier shipment
// exactly once.
type Orchestrator struct {
	repo     store.OrderRepository
	registry *courier.Registry
	notifier notify.Notifier
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	cfg      ShippingConfig
	now      func() time.Time
}

// NewOrchestrator creates a shipment orchestrator.
func NewOrchestrator(repo store.OrderRepository, registry *courier.Registry, notifier notify.Notifier, metrics *telemetry.Metrics, logger *zap.Logger, cfg ShippingConfig) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Orchestrator{
		repo:     repo,
		registry: registry,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateShipment registers a shipment with the courier for an order and
// records the linkage. providerCode may be empty, selecting the configured
// default. The second call for the same order fails with an "already shipped"
// validation error; the courier call is never repeated.
func (s *Orchestrator) CreateShipment(ctx context.Context, orderID string, providerCode domain.CourierCode, override *PackageOverride) (*CreateShipmentResult, error) {
	const op = "service.create_shipment"

	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.HasShipment() {
		return nil, domain.ErrAlreadyShipped
	}

	if providerCode == "" || providerCode == domain.CourierNone {
		providerCode = s.cfg.DefaultProvider
	}
	provider, ok := s.registry.Get(providerCode)
	if !ok {
		return nil, domain.Errorf(domain.EINVALID, op, "unknown shipping provider: %s", providerCode)
	}

	// Fail before the courier call if the resulting transition would be
	// illegal, so no unrecordable shipment is ever created.
	if !domain.CanTransition(order.Status, domain.StatusShipped) {
		return nil, domain.Errorf(domain.ESTATE, op, "cannot ship order in status %s", order.Status)
	}

	// Legacy orders occasionally carry an invalid payment mode; coerce so the
	// courier payload is well formed and note it for the audit trail.
	if !order.PaymentMode.Valid() {
		s.logger.Warn("coercing invalid payment mode",
			zap.String("order_id", order.OrderID),
			zap.String("payment_mode", string(order.PaymentMode)),
		)
		order.PaymentMode = domain.PaymentOnline
	}

	params := s.buildParams(order, override)

	start := s.now()
	record, err := provider.CreateShipment(ctx, params)
	if s.metrics != nil {
		s.metrics.CourierRequestTime.WithLabelValues(string(providerCode), "create_shipment").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.ShipmentsFailed.WithLabelValues(string(providerCode), domain.ErrorCode(err)).Inc()
		}
		s.logger.Error("courier shipment creation failed",
			zap.String("order_id", order.OrderID),
			zap.String("provider", string(providerCode)),
			zap.Error(err),
		)
		return nil, err
	}

	expected := order.Status
	order.AttachShipment(shipmentFromRecord(record))
	note := "Shipment created via " + string(record.Provider) + ". Tracking ID: " + record.TrackingID
	if err := order.Transition(domain.StatusShipped, note, s.now()); err != nil {
		// Precondition was checked above; reaching this means a concurrent
		// writer moved the order. The courier shipment exists regardless.
		s.logger.Error("post-shipment transition rejected", zap.String("order_id", order.OrderID), zap.Error(err))
		return nil, err
	}

	result := &CreateShipmentResult{Order: order, Persisted: true}

	if err := s.repo.AttachShipment(ctx, order, expected); err != nil {
		// The shipment exists at the courier, so this stays a success with a
		// warning; failing here would leave the pickup unmatched to any order.
		// A compare-and-set miss lands here too: a transition that raced the
		// courier call stays on record, and the shipment is reported orphaned
		// instead of overwriting it.
		if s.metrics != nil {
			s.metrics.ShipmentsOrphaned.Inc()
		}
		s.logger.Error("shipment created at courier but not persisted",
			zap.String("order_id", order.OrderID),
			zap.String("tracking_id", record.TrackingID),
			zap.Error(err),
		)
		result.Persisted = false
		result.Warning = "Shipment created at courier but local record update failed; reconcile manually. Tracking ID: " + record.TrackingID
	}

	if s.metrics != nil {
		s.metrics.ShipmentsCreated.WithLabelValues(string(providerCode)).Inc()
	}

	s.dispatch(ctx, notify.EventShipped, order, "")
	return result, nil
}

// buildParams maps the order and overrides into the provider-agnostic
// shipment payload. The total is never recomputed; it is the order's final
// price.
func (s *Orchestrator) buildParams(order *domain.Order, override *PackageOverride) courier.CreateShipmentParams {
	pkg := courier.Package{
		WeightGrams: order.TotalWeightGrams(s.cfg.DefaultWeightGrams),
		LengthCm:    s.cfg.DefaultLengthCm,
		WidthCm:     s.cfg.DefaultWidthCm,
		HeightCm:    s.cfg.DefaultHeightCm,
	}
	if override != nil {
		if override.WeightGrams > 0 {
			pkg.WeightGrams = override.WeightGrams
		}
		if override.LengthCm > 0 {
			pkg.LengthCm = override.LengthCm
		}
		if override.WidthCm > 0 {
			pkg.WidthCm = override.WidthCm
		}
		if override.HeightCm > 0 {
			pkg.HeightCm = override.HeightCm
		}
	}

	items := make([]courier.ShipmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, courier.ShipmentItem{
			Name:           item.Title,
			SKU:            item.ProductID,
			Quantity:       item.Quantity,
			UnitPricePaise: item.UnitPricePaise,
		})
	}

	return courier.CreateShipmentParams{
		OrderNumber:   order.OrderID,
		OrderDate:     order.CreatedAt,
		Items:         items,
		Address:       order.ShippingAddress,
		CustomerEmail: order.CustomerEmail,
		FinalPaise:    order.FinalPaise,
		DiscountPaise: order.DiscountPaise,
		PaymentMode:   order.PaymentMode,
		Package:       pkg,
		GSTRate:       s.cfg.GSTRate,
	}
}

// SchedulePickup requests courier pickup for an order's shipment.
func (s *Orchestrator) SchedulePickup(ctx context.Context, orderID string) (*courier.PickupResult, error) {
	const op = "service.schedule_pickup"

	order, provider, err := s.shippedOrder(ctx, op, orderID)
	if err != nil {
		return nil, err
	}
	return provider.SchedulePickup(ctx, providerShipmentID(order))
}

// CancelCourierShipment cancels the courier-side shipment of an order. The
// order's own status is not touched; cancelling the order is a separate,
// explicitly reasoned action.
func (s *Orchestrator) CancelCourierShipment(ctx context.Context, orderID string) error {
	const op = "service.cancel_courier_shipment"

	order, provider, err := s.shippedOrder(ctx, op, orderID)
	if err != nil {
		return err
	}
	return provider.CancelShipment(ctx, order.TrackingID)
}

// CheckServiceability reports delivery options at a pincode for a provider.
func (s *Orchestrator) CheckServiceability(ctx context.Context, providerCode domain.CourierCode, pincode string) (*courier.Serviceability, error) {
	const op = "service.check_serviceability"

	if providerCode == "" || providerCode == domain.CourierNone {
		providerCode = s.cfg.DefaultProvider
	}
	provider, ok := s.registry.Get(providerCode)
	if !ok {
		return nil, domain.Errorf(domain.EINVALID, op, "unknown shipping provider: %s", providerCode)
	}
	return provider.CheckServiceability(ctx, pincode)
}

func (s *Orchestrator) shippedOrder(ctx context.Context, op, orderID string) (*domain.Order, courier.Provider, error) {
	order, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if !order.HasShipment() {
		return nil, nil, domain.Invalid(op, "order has no shipment")
	}
	provider, ok := s.registry.Get(order.Provider)
	if !ok {
		return nil, nil, domain.Errorf(domain.EINTERNAL, op, "no provider configured for %s", order.Provider)
	}
	return order, provider, nil
}

// dispatch sends a lifecycle notification. Failures are logged, never
// propagated: a dead mail server must not roll back a real state change.
func (s *Orchestrator) dispatch(ctx context.Context, kind string, order *domain.Order, reason string) {
	event := notify.NewEvent(kind, order)
	event.Reason = reason

	if err := s.notifier.Notify(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.NotificationsFailed.WithLabelValues(kind).Inc()
		}
		s.logger.Error("notification dispatch failed",
			zap.String("kind", kind),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(kind).Inc()
	}
}

// shipmentFromRecord maps a normalized courier record into the order's
// provider-specific sub-document.
func shipmentFromRecord(record *courier.ShipmentRecord) domain.Shipment {
	sh := domain.Shipment{
		Provider:    record.Provider,
		TrackingID:  record.TrackingID,
		CourierName: record.CourierName,
	}

	switch record.Provider {
	case domain.CourierShiprocket:
		orderID, _ := strconv.ParseInt(record.OrderNumber, 10, 64)
		shipmentID, _ := strconv.ParseInt(record.ShipmentID, 10, 64)
		sh.Shiprocket = &domain.ShiprocketShipment{
			OrderID:     orderID,
			ShipmentID:  shipmentID,
			AWB:         record.AWB,
			CourierName: record.CourierName,
			CreatedAt:   record.CreatedAt,
		}
	case domain.CourierEkart:
		sh.Ekart = &domain.EkartShipment{
			TrackingID:     record.TrackingID,
			WaybillNumber:  record.AWB,
			Vendor:         record.Vendor,
			OrderNumber:    record.OrderNumber,
			CODWaybill:     record.CODWaybill,
			ShipmentStatus: record.Status,
			CreatedAt:      record.CreatedAt,
		}
	case domain.CourierDelhivery:
		sh.Delhivery = &domain.DelhiveryShipment{
			Waybill:     record.AWB,
			ReferenceNo: record.OrderNumber,
			CreatedAt:   record.CreatedAt,
		}
	}
	return sh
}

// providerShipmentID picks the identifier a provider expects for pickup and
// cancel operations.
func providerShipmentID(order *domain.Order) string {
	if order.Shiprocket != nil && order.Shiprocket.ShipmentID != 0 {
		return strconv.FormatInt(order.Shiprocket.ShipmentID, 10)
	}
	return order.TrackingID
}
