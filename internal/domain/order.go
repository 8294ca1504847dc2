package domain

import (
	"time"
)

// PaymentMode is how the customer pays for an order.
type PaymentMode string

const (
	PaymentOnline PaymentMode = "online"
	PaymentCOD    PaymentMode = "cod"
)

// Valid reports whether m is a supported payment mode.
func (m PaymentMode) Valid() bool {
	return m == PaymentOnline || m == PaymentCOD
}

// PaymentStatus tracks whether payment has been captured.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// CourierCode identifies a courier aggregator integration.
type CourierCode string

const (
	CourierShiprocket CourierCode = "shiprocket"
	CourierEkart      CourierCode = "ekart"
	CourierDelhivery  CourierCode = "delhivery"
	CourierNone       CourierCode = "none"
)

// Valid reports whether c names a real provider (CourierNone is not one).
func (c CourierCode) Valid() bool {
	return c == CourierShiprocket || c == CourierEkart || c == CourierDelhivery
}

// Order-related domain errors.
var (
	ErrOrderNotFound  = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrAlreadyShipped = &Error{Code: EINVALID, Message: "Order already has a shipment"}
)

// OrderItem is a line item with snapshot fields, so historical orders are
// immune to later product edits.
type OrderItem struct {
	ProductID      string `bson:"product_id" json:"product_id"`
	Title          string `bson:"title" json:"title"`
	Image          string `bson:"image,omitempty" json:"image,omitempty"`
	Variant        string `bson:"variant,omitempty" json:"variant,omitempty"`
	Quantity       int32  `bson:"quantity" json:"quantity"`
	UnitPricePaise int64  `bson:"unit_price_paise" json:"unit_price_paise"`
	WeightGrams    int32  `bson:"weight_grams,omitempty" json:"weight_grams,omitempty"`
}

// ShippingAddress is the destination snapshot captured at checkout.
type ShippingAddress struct {
	Name     string `bson:"name" json:"name"`
	Phone    string `bson:"phone" json:"phone"`
	Street   string `bson:"street" json:"street"`
	City     string `bson:"city" json:"city"`
	State    string `bson:"state" json:"state"`
	Pincode  string `bson:"pincode" json:"pincode"`
	Landmark string `bson:"landmark,omitempty" json:"landmark,omitempty"`
	Type     string `bson:"type,omitempty" json:"type,omitempty"` // home/work/other
}

// ShiprocketShipment holds Shiprocket-assigned identifiers.
type ShiprocketShipment struct {
	OrderID     int64     `bson:"order_id" json:"order_id"`
	ShipmentID  int64     `bson:"shipment_id" json:"shipment_id"`
	AWB         string    `bson:"awb" json:"awb"`
	CourierName string    `bson:"courier_name,omitempty" json:"courier_name,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// EkartShipment holds Ekart-assigned identifiers.
type EkartShipment struct {
	TrackingID     string    `bson:"tracking_id" json:"tracking_id"`
	WaybillNumber  string    `bson:"waybill_number" json:"waybill_number"`
	Vendor         string    `bson:"vendor,omitempty" json:"vendor,omitempty"`
	OrderNumber    string    `bson:"order_number" json:"order_number"`
	CODWaybill     string    `bson:"cod_waybill,omitempty" json:"cod_waybill,omitempty"`
	ShipmentStatus string    `bson:"shipment_status,omitempty" json:"shipment_status,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// DelhiveryShipment holds Delhivery-assigned identifiers.
type DelhiveryShipment struct {
	Waybill     string    `bson:"waybill" json:"waybill"`
	ReferenceNo string    `bson:"reference_no" json:"reference_no"`
	UploadWbn   string    `bson:"upload_wbn,omitempty" json:"upload_wbn,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Shipment is the provider-agnostic shipment linkage written onto an order
// once a courier shipment exists. Exactly one provider sub-document is set,
// matching Provider.
type Shipment struct {
	Provider    CourierCode         `bson:"shipping_provider" json:"shipping_provider"`
	TrackingID  string              `bson:"tracking_id" json:"tracking_id"`
	CourierName string              `bson:"courier_name,omitempty" json:"courier_name,omitempty"`
	Shiprocket  *ShiprocketShipment `bson:"shiprocket,omitempty" json:"shiprocket,omitempty"`
	Ekart       *EkartShipment      `bson:"ekart,omitempty" json:"ekart,omitempty"`
	Delhivery   *DelhiveryShipment  `bson:"delhivery,omitempty" json:"delhivery,omitempty"`
}

// Order is the central aggregate: items, destination, money, lifecycle state
// and shipment linkage in one document.
type Order struct {
	ID      string `bson:"_id,omitempty" json:"id"`
	OrderID string `bson:"order_id" json:"order_id"` // human-readable, e.g. NM000123

	Items           []OrderItem     `bson:"items" json:"items"`
	ShippingAddress ShippingAddress `bson:"shipping_address" json:"shipping_address"`

	TotalPaise    int64 `bson:"total_paise" json:"total_paise"`
	DiscountPaise int64 `bson:"discount_paise" json:"discount_paise"`
	FinalPaise    int64 `bson:"final_paise" json:"final_paise"`

	PaymentMode   PaymentMode   `bson:"payment_mode" json:"payment_mode"`
	PaymentStatus PaymentStatus `bson:"payment_status" json:"payment_status"`

	Status        OrderStatus   `bson:"order_status" json:"order_status"`
	StatusHistory []StatusEntry `bson:"status_history" json:"status_history"`

	TrackingID  string              `bson:"tracking_id,omitempty" json:"tracking_id,omitempty"`
	Provider    CourierCode         `bson:"shipping_provider,omitempty" json:"shipping_provider,omitempty"`
	CourierName string              `bson:"courier_name,omitempty" json:"courier_name,omitempty"`
	Shiprocket  *ShiprocketShipment `bson:"shiprocket,omitempty" json:"shiprocket,omitempty"`
	Ekart       *EkartShipment      `bson:"ekart,omitempty" json:"ekart,omitempty"`
	Delhivery   *DelhiveryShipment  `bson:"delhivery,omitempty" json:"delhivery,omitempty"`

	CustomerEmail string    `bson:"customer_email,omitempty" json:"customer_email,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// NewOrder creates an order in its initial state with a seeded history entry.
func NewOrder(orderID string, items []OrderItem, addr ShippingAddress, totalPaise, discountPaise int64, mode PaymentMode, now time.Time) *Order {
	return &Order{
		OrderID:         orderID,
		Items:           items,
		ShippingAddress: addr,
		TotalPaise:      totalPaise,
		DiscountPaise:   discountPaise,
		FinalPaise:      totalPaise - discountPaise,
		PaymentMode:     mode,
		PaymentStatus:   PaymentPending,
		Status:          StatusProcessing,
		StatusHistory: []StatusEntry{{
			Status:    StatusProcessing,
			UpdatedAt: now.UTC(),
			Note:      "Order placed",
		}},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Validate checks the aggregate's structural invariants.
func (o *Order) Validate() error {
	const op = "order.validate"

	if o.OrderID == "" {
		return Invalid(op, "order id is required")
	}
	if len(o.Items) == 0 {
		return Invalid(op, "order has no items")
	}
	if o.FinalPaise != o.TotalPaise-o.DiscountPaise {
		return Invalid(op, "final price must equal total minus discount")
	}
	if o.FinalPaise < 0 {
		return Invalid(op, "final price cannot be negative")
	}
	if !o.Status.Valid() {
		return Errorf(EINVALID, op, "unknown order status: %s", o.Status)
	}
	if len(o.StatusHistory) == 0 {
		return Invalid(op, "status history is empty")
	}
	if last := o.StatusHistory[len(o.StatusHistory)-1]; last.Status != o.Status {
		return Invalid(op, "last status history entry does not match order status")
	}
	return nil
}

// HasShipment reports whether a courier shipment has been created for this
// order. TrackingID is set if and only if a shipment exists.
func (o *Order) HasShipment() bool {
	return o.TrackingID != ""
}

// TotalWeightGrams sums item weights, substituting defaultGrams for items
// with no declared weight.
func (o *Order) TotalWeightGrams(defaultGrams int32) int32 {
	var total int32
	for _, item := range o.Items {
		w := item.WeightGrams
		if w <= 0 {
			w = defaultGrams
		}
		total += w * item.Quantity
	}
	return total
}

// AttachShipment writes provider identifiers onto the order. Callers persist
// this via a compare-and-set on an unset tracking id; this method only mutates
// the in-memory aggregate.
func (o *Order) AttachShipment(sh Shipment) {
	o.TrackingID = sh.TrackingID
	o.Provider = sh.Provider
	o.CourierName = sh.CourierName
	o.Shiprocket = sh.Shiprocket
	o.Ekart = sh.Ekart
	o.Delhivery = sh.Delhivery
}
