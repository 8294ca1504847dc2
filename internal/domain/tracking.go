package domain

import (
	"sort"
	"time"
)

// TrackingActivity is a single scan event or internally-recorded transition.
type TrackingActivity struct {
	Activity   string    `json:"activity"`
	Date       time.Time `json:"date"`
	Location   string    `json:"location,omitempty"`
	StatusCode string    `json:"status_code,omitempty"`
}

// TrackingView is the normalized, provider-agnostic shape returned to the
// customer-facing tracking page, regardless of which source resolved it.
// Activities are ordered newest first. An empty activities list is valid:
// the shipment exists but has no scan events yet.
type TrackingView struct {
	Provider      CourierCode        `json:"provider"`
	AWB           string             `json:"awb"`
	CurrentStatus string             `json:"current_status"`
	CourierName   string             `json:"courier_name,omitempty"`
	EDD           string             `json:"edd,omitempty"`
	Activities    []TrackingActivity `json:"activities"`

	// OrderRef is a provider-side order identifier embedded in the courier's
	// tracking response, when one is present. The resolver uses it for a
	// second local lookup; it is not rendered to customers.
	OrderRef string `json:"-"`

	// Order linkage, populated when the shipment matched a local order.
	OrderID         string           `json:"order_id,omitempty"`
	ShippingAddress *ShippingAddress `json:"shipping_address,omitempty"`
}

// SortNewestFirst orders activities by date descending, in place.
func (v *TrackingView) SortNewestFirst() {
	sort.SliceStable(v.Activities, func(i, j int) bool {
		return v.Activities[i].Date.After(v.Activities[j].Date)
	})
}

// HistoryActivities derives tracking activities from an order's status
// history, newest first. These represent internally-confirmed transitions and
// serve as the authoritative base when no courier scan data is available.
func (o *Order) HistoryActivities() []TrackingActivity {
	activities := make([]TrackingActivity, 0, len(o.StatusHistory))
	for i := len(o.StatusHistory) - 1; i >= 0; i-- {
		entry := o.StatusHistory[i]
		text := "Order " + string(entry.Status)
		if entry.Note != "" {
			text = entry.Note
		}
		activities = append(activities, TrackingActivity{
			Activity:   text,
			Date:       entry.UpdatedAt,
			StatusCode: string(entry.Status),
		})
	}
	return activities
}
