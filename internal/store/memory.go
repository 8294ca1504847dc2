package store

import (
	"context"
	"sync"
	"time"

	"github.com/naturemedica/commerce/internal/domain"
)

// MemoryOrderRepository is an in-memory OrderRepository with the same
// compare-and-set semantics as the Mongo implementation. Used in tests.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// FailAttach forces AttachShipment to return the given error, for
	// exercising partial-failure paths.
	FailAttach error
}

var _ OrderRepository = (*MemoryOrderRepository)(nil)

// NewMemoryOrderRepository creates an empty in-memory repository.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.OrderID]; exists {
		return &domain.Error{Code: domain.ECONFLICT, Message: "Order " + order.OrderID + " already exists"}
	}
	r.orders[order.OrderID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrderRepository) FindByOrderID(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryOrderRepository) FindByTrackingRef(_ context.Context, ref string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, order := range r.orders {
		if order.TrackingID == ref || order.OrderID == ref {
			return cloneOrder(order), nil
		}
		if order.Shiprocket != nil && order.Shiprocket.AWB == ref {
			return cloneOrder(order), nil
		}
		if order.Ekart != nil && order.Ekart.OrderNumber == ref {
			return cloneOrder(order), nil
		}
		if order.Delhivery != nil && order.Delhivery.ReferenceNo == ref {
			return cloneOrder(order), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r *MemoryOrderRepository) AttachShipment(_ context.Context, order *domain.Order, expected domain.OrderStatus) error {
	if r.FailAttach != nil {
		return r.FailAttach
	}
	if len(order.StatusHistory) == 0 {
		return domain.Invalid("store.order_attach_shipment", "order has no history entry to persist")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.TrackingID != "" {
		return domain.ErrAlreadyShipped
	}
	if stored.Status != expected {
		return ErrStatusConflict
	}

	// Push-only, mirroring the Mongo update: history entries written by
	// concurrent transitions are never replaced.
	stored.TrackingID = order.TrackingID
	stored.Provider = order.Provider
	stored.CourierName = order.CourierName
	if order.Shiprocket != nil {
		sr := *order.Shiprocket
		stored.Shiprocket = &sr
	}
	if order.Ekart != nil {
		ek := *order.Ekart
		stored.Ekart = &ek
	}
	if order.Delhivery != nil {
		dl := *order.Delhivery
		stored.Delhivery = &dl
	}
	stored.Status = order.Status
	stored.StatusHistory = append(stored.StatusHistory, order.StatusHistory[len(order.StatusHistory)-1])
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryOrderRepository) AppendStatus(_ context.Context, orderID string, expected domain.OrderStatus, entry domain.StatusEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Status != expected {
		return ErrStatusConflict
	}

	stored.Status = entry.Status
	stored.StatusHistory = append(stored.StatusHistory, entry)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryOrderRepository) SetTrackingBackfill(_ context.Context, orderID, trackingID string, provider domain.CourierCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.TrackingID != "" {
		return nil
	}

	stored.TrackingID = trackingID
	stored.Provider = provider
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	clone := *order
	clone.Items = append([]domain.OrderItem(nil), order.Items...)
	clone.StatusHistory = append([]domain.StatusEntry(nil), order.StatusHistory...)
	if order.Shiprocket != nil {
		sr := *order.Shiprocket
		clone.Shiprocket = &sr
	}
	if order.Ekart != nil {
		ek := *order.Ekart
		clone.Ekart = &ek
	}
	if order.Delhivery != nil {
		dl := *order.Delhivery
		clone.Delhivery = &dl
	}
	return &clone
}
