package courier

import (
	"context"
	"strconv"
	"time"

	"github.com/naturemedica/commerce/internal/domain"
)

// Provider is the uniform contract over courier aggregators. Providers have
// incompatible authentication schemes, payload shapes and response field
// names; isolating each behind this contract keeps the orchestrator and the
// tracking resolver provider-agnostic. Raw provider payloads never cross this
// boundary; every response is normalized before it is returned.
type Provider interface {
	// Code identifies the aggregator this provider integrates.
	Code() domain.CourierCode

	// CreateShipment registers a shipment with the courier and returns the
	// provider-assigned identifiers, normalized.
	CreateShipment(ctx context.Context, params CreateShipmentParams) (*ShipmentRecord, error)

	// CheckServiceability reports delivery options at a pincode. Absent
	// serviceability data yields the zero value: unknown, assume unavailable.
	CheckServiceability(ctx context.Context, pincode string) (*Serviceability, error)

	// TrackByAWB fetches live tracking for a waybill, normalized into the
	// customer-facing tracking view shape.
	TrackByAWB(ctx context.Context, awb string) (*domain.TrackingView, error)

	// SchedulePickup requests courier pickup for a created shipment.
	// Invoked only from admin-triggered flows.
	SchedulePickup(ctx context.Context, shipmentID string) (*PickupResult, error)

	// CancelShipment cancels a shipment by waybill.
	// Invoked only from admin-triggered flows.
	CancelShipment(ctx context.Context, awb string) error
}

// SellerDetails carries the environment-configured seller identity used in
// shipment payloads. The values are opaque strings to this package.
type SellerDetails struct {
	Name            string
	Address         string
	GSTIN           string
	PickupLocation  string
	PickupPincode   string
	ReturnWarehouse string
}

// ShipmentItem is a line item in a shipment creation payload.
type ShipmentItem struct {
	Name           string
	SKU            string
	Quantity       int32
	UnitPricePaise int64
}

// Package is the physical parcel to be shipped.
type Package struct {
	WeightGrams int32
	LengthCm    int32
	WidthCm     int32
	HeightCm    int32
}

// CreateShipmentParams is the provider-agnostic shipment creation payload,
// derived from the order plus package overrides. Ephemeral: built fresh per
// provider call, never persisted.
type CreateShipmentParams struct {
	OrderNumber   string
	OrderDate     time.Time
	Items         []ShipmentItem
	Address       domain.ShippingAddress
	CustomerEmail string

	// FinalPaise is the order's final price. It is never recomputed here;
	// providers needing taxable/tax-value splits derive them from GSTRate.
	FinalPaise    int64
	DiscountPaise int64
	PaymentMode   domain.PaymentMode

	Package Package

	// GSTRate is the inclusive tax rate assumption (e.g. 0.18).
	GSTRate float64
}

// CODAmountPaise is the amount to collect on delivery: the final price for
// COD orders, zero for prepaid.
func (p CreateShipmentParams) CODAmountPaise() int64 {
	if p.PaymentMode == domain.PaymentCOD {
		return p.FinalPaise
	}
	return 0
}

// ShipmentRecord is the normalized result of a successful shipment creation.
// Field names vary per provider on the wire; adapters map them here.
type ShipmentRecord struct {
	Provider    domain.CourierCode
	TrackingID  string // generic customer-facing identifier
	AWB         string
	ShipmentID  string
	OrderNumber string // provider-side order identifier
	CODWaybill  string
	Vendor      string
	CourierName string
	Status      string
	CreatedAt   time.Time
}

// Serviceability reports delivery options at a pincode. The zero value means
// no data: unknown, assume unavailable.
type Serviceability struct {
	CODAvailable           bool `json:"cod_available"`
	PrepaidAvailable       bool `json:"prepaid_available"`
	ReversePickupAvailable bool `json:"reverse_pickup_available"`
}

// PickupResult is the normalized outcome of a pickup request.
type PickupResult struct {
	PickupID     string `json:"pickup_id"`
	ScheduledFor string `json:"scheduled_for,omitempty"`
}

// Registry holds the configured providers in fallback order.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry. Order matters: the tracking resolver probes
// providers in this order when an AWB has no local linkage.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Get returns the provider for a courier code.
func (r *Registry) Get(code domain.CourierCode) (Provider, bool) {
	for _, p := range r.providers {
		if p.Code() == code {
			return p, true
		}
	}
	return nil, false
}

// All returns every registered provider in registration order.
func (r *Registry) All() []Provider {
	return r.providers
}

// paiseToRupees converts integer paise to a rupee amount for providers that
// expect decimal currency values.
func paiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}

// gramsToKg converts grams to kilograms for providers that expect weights in kg.
func gramsToKg(grams int32) float64 {
	return float64(grams) / 1000
}

// formatRupees renders a paise amount as a rupee string for form-based APIs.
func formatRupees(paise int64) string {
	return strconv.FormatFloat(paiseToRupees(paise), 'f', 2, 64)
}

func formatInt32(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

func formatInt64(v int64) string {
	return strconv.FormatInt(v, 10)
}
