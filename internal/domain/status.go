package domain

import (
	"time"
)

// OrderStatus is the current state of an order in its lifecycle.
type OrderStatus string

const (
	StatusProcessing OrderStatus = "Processing"
	StatusConfirmed  OrderStatus = "Confirmed"
	StatusShipped    OrderStatus = "Shipped"
	StatusDelivered  OrderStatus = "Delivered"
	StatusCancelled  OrderStatus = "Cancelled"
)

// transitions is the legal edge set of the order lifecycle.
// Delivered and Cancelled are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	StatusProcessing: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible from s.
func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransition reports whether the edge from → to is legal.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusEntry is one record in an order's append-only status history.
type StatusEntry struct {
	Status    OrderStatus `bson:"status" json:"status"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"`
	Note      string      `bson:"note,omitempty" json:"note,omitempty"`
}

// Transition moves the order to newStatus, validating the edge and appending
// to the status history. Cancellation requires a non-empty note: it is the
// only chokepoint all cancellation paths share, so the audit requirement is
// enforced here. The order is left unchanged on error.
func (o *Order) Transition(newStatus OrderStatus, note string, now time.Time) error {
	const op = "order.transition"

	if !newStatus.Valid() {
		return Errorf(EINVALID, op, "unknown order status: %s", newStatus)
	}
	if !CanTransition(o.Status, newStatus) {
		return Errorf(ESTATE, op, "cannot transition order %s from %s to %s", o.OrderID, o.Status, newStatus)
	}
	if newStatus == StatusCancelled && note == "" {
		return Errorf(EINVALID, op, "cancellation requires a reason")
	}

	o.Status = newStatus
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    newStatus,
		UpdatedAt: now.UTC(),
		Note:      note,
	})
	o.UpdatedAt = now.UTC()
	return nil
}
