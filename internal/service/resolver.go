package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/naturemedica/commerce/internal/cache"
	"github.com/naturemedica/commerce/internal/courier"
	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/store"
	"github.com/naturemedica/commerce/internal/telemetry"

	"go.uber.org/zap"
)

// Resolver produces one normalized tracking view for an AWB or order
// identifier, regardless of where the authoritative data currently lives.
type Resolver struct {
	repo     store.OrderRepository
	registry *courier.Registry
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

// NewResolver creates a tracking resolver. cacheTTL bounds how stale a served
// tracking view can be.
func NewResolver(repo store.OrderRepository, registry *courier.Registry, c cache.Cache, cacheTTL time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.Noop{}
	}
	return &Resolver{
		repo:     repo,
		registry: registry,
		cache:    c,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve returns the tracking view for ref, which may be a tracking id, an
// order id or a provider-side order number. When nothing matches locally or
// at any courier, it returns a not-found error; a status is never fabricated.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*domain.TrackingView, error) {
	const op = "service.resolve_tracking"

	if ref == "" {
		return nil, domain.Invalid(op, "tracking reference is required")
	}

	if view, ok := r.fromCache(ctx, ref); ok {
		r.count("cache")
		return view, nil
	}

	order, err := r.repo.FindByTrackingRef(ctx, ref)
	switch {
	case err == nil:
		view, source := r.resolveFromOrder(ctx, order)
		r.count(source)
		r.store(ctx, ref, view)
		return view, nil
	case errors.Is(err, domain.ErrOrderNotFound):
		// Fall through to a direct courier probe.
	default:
		return nil, err
	}

	view, err := r.resolveFromCouriers(ctx, ref)
	if err != nil {
		if r.metrics != nil {
			r.metrics.TrackingFailures.Inc()
		}
		return nil, err
	}
	r.count("live")
	r.store(ctx, ref, view)
	return view, nil
}

// resolveFromOrder builds the view from the order's own status history, then
// enriches it with live courier data when a shipment exists. Local history is
// the authoritative base: internally-confirmed transitions always render even
// when the courier is unreachable.
func (r *Resolver) resolveFromOrder(ctx context.Context, order *domain.Order) (*domain.TrackingView, string) {
	addr := order.ShippingAddress
	view := &domain.TrackingView{
		Provider:        order.Provider,
		AWB:             order.TrackingID,
		CurrentStatus:   string(order.Status),
		CourierName:     order.CourierName,
		Activities:      order.HistoryActivities(),
		OrderID:         order.OrderID,
		ShippingAddress: &addr,
	}

	if !order.HasShipment() || !order.Provider.Valid() {
		return view, "history"
	}
	provider, ok := r.registry.Get(order.Provider)
	if !ok {
		return view, "history"
	}

	live, err := provider.TrackByAWB(ctx, order.TrackingID)
	if err != nil {
		r.logger.Warn("live tracking enrichment failed, serving local history",
			zap.String("order_id", order.OrderID),
			zap.String("tracking_id", order.TrackingID),
			zap.Error(err),
		)
		return view, "history"
	}

	if live.CurrentStatus != "" {
		view.CurrentStatus = live.CurrentStatus
	}
	if live.CourierName != "" {
		view.CourierName = live.CourierName
	}
	view.EDD = live.EDD
	// Courier scans layer over the history-derived base rather than replacing
	// it: internal events like confirmation never appear in the courier feed.
	if len(live.Activities) > 0 {
		view.Activities = append(view.Activities, live.Activities...)
		view.SortNewestFirst()
	}
	return view, "live"
}

// resolveFromCouriers probes each configured provider for a raw AWB with no
// local linkage. A hit with an embedded order reference triggers a second
// local lookup and a best-effort tracking backfill onto that order.
func (r *Resolver) resolveFromCouriers(ctx context.Context, ref string) (*domain.TrackingView, error) {
	const op = "service.resolve_tracking"

	for _, provider := range r.registry.All() {
		view, err := provider.TrackByAWB(ctx, ref)
		if err != nil {
			if !domain.IsCode(err, domain.ENOTFOUND) {
				r.logger.Warn("courier probe failed",
					zap.String("provider", string(provider.Code())),
					zap.String("ref", ref),
					zap.Error(err),
				)
			}
			continue
		}

		if view.OrderRef != "" {
			if order, ferr := r.repo.FindByTrackingRef(ctx, view.OrderRef); ferr == nil {
				view.OrderID = order.OrderID
				addr := order.ShippingAddress
				view.ShippingAddress = &addr

				if berr := r.repo.SetTrackingBackfill(ctx, order.OrderID, ref, provider.Code()); berr != nil {
					r.logger.Warn("tracking backfill failed",
						zap.String("order_id", order.OrderID),
						zap.String("tracking_id", ref),
						zap.Error(berr),
					)
				}
			}
		}
		return view, nil
	}

	return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "No tracking information found for " + ref}
}

func (r *Resolver) fromCache(ctx context.Context, ref string) (*domain.TrackingView, bool) {
	raw, err := r.cache.Get(ctx, trackingKey(ref))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("tracking cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var view domain.TrackingView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false
	}
	return &view, true
}

func (r *Resolver) store(ctx context.Context, ref string, view *domain.TrackingView) {
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, trackingKey(ref), raw, r.cacheTTL); err != nil {
		r.logger.Warn("tracking cache write failed", zap.Error(err))
	}
}

func (r *Resolver) count(source string) {
	if r.metrics != nil {
		r.metrics.TrackingResolutions.WithLabelValues(source).Inc()
	}
}

func trackingKey(ref string) string {
	return "tracking:" + ref
}
