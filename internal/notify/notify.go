package notify

import (
	"context"
	"errors"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"github.com/google/uuid"
)

// Event kinds emitted on order lifecycle changes.
const (
	EventShipped   = "order.shipped"
	EventDelivered = "order.delivered"
	EventCancelled = "order.cancelled"
)

// Event is a lifecycle notification. Delivery is best effort: a failed
// notification never rolls back the state change that produced it.
type Event struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	OrderID    string             `json:"order_id"`
	Status     domain.OrderStatus `json:"status"`
	TrackingID string             `json:"tracking_id,omitempty"`
	Provider   domain.CourierCode `json:"provider,omitempty"`
	Courier    string             `json:"courier,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Customer   string             `json:"customer,omitempty"`
	Email      string             `json:"email,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// NewEvent builds an event with a fresh id and timestamp from an order.
func NewEvent(kind string, order *domain.Order) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		OrderID:    order.OrderID,
		Status:     order.Status,
		TrackingID: order.TrackingID,
		Provider:   order.Provider,
		Courier:    order.CourierName,
		Customer:   order.ShippingAddress.Name,
		Email:      order.CustomerEmail,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier delivers lifecycle events to one channel (email, message bus).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Fanout delivers an event to every notifier, collecting failures instead of
// stopping at the first one.
type Fanout struct {
	notifiers []Notifier
}

// NewFanout creates a fanout over the given notifiers.
func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

// Func adapts a function to the Notifier interface. Used in tests.
type Func func(ctx context.Context, event Event) error

func (fn Func) Notify(ctx context.Context, event Event) error { return fn(ctx, event) }
