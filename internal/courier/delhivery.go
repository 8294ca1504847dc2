package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"go.uber.org/zap"
)

// DelhiveryConfig contains configuration for the Delhivery provider.
type DelhiveryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Seller  SellerDetails
	Logger  *zap.Logger
}

// Delhivery implements Provider against the Delhivery B2C API. Delhivery uses
// a static API key, so there is no token cache.
type Delhivery struct {
	cfg    DelhiveryConfig
	rest   *restClient
	logger *zap.Logger
}

// NewDelhivery creates a new Delhivery courier provider.
func NewDelhivery(cfg DelhiveryConfig) (*Delhivery, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", "delhivery"))

	return &Delhivery{
		cfg:    cfg,
		rest:   newRestClient(cfg.BaseURL, "delhivery", cfg.Timeout, logger),
		logger: logger,
	}, nil
}

// Code identifies the aggregator.
func (p *Delhivery) Code() domain.CourierCode {
	return domain.CourierDelhivery
}

func (p *Delhivery) authHeaders() map[string]string {
	return map[string]string{"Authorization": "Token " + p.cfg.APIKey}
}

type delhiveryShipment struct {
	Name          string `json:"name"`
	Add           string `json:"add"`
	City          string `json:"city"`
	State         string `json:"state"`
	Pin           string `json:"pin"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
	Order         string `json:"order"`
	PaymentMode   string `json:"payment_mode"`
	CODAmount     string `json:"cod_amount"`
	TotalAmount   string `json:"total_amount"`
	ProductsDesc  string `json:"products_desc"`
	Quantity      string `json:"quantity"`
	WeightGrams   string `json:"weight"`
	ShipmentWidth string `json:"shipment_width"`
	ShipmentHt    string `json:"shipment_height"`
	ShipmentLen   string `json:"shipment_length"`
	SellerGSTTin  string `json:"seller_gst_tin"`
	SellerName    string `json:"seller_name"`
}

type delhiveryCreateData struct {
	Shipments []delhiveryShipment `json:"shipments"`
	PickupLoc struct {
		Name string `json:"name"`
	} `json:"pickup_location"`
}

// CreateShipment registers a package manifest with Delhivery. The create
// endpoint is form-encoded with the JSON manifest in a "data" field.
func (p *Delhivery) CreateShipment(ctx context.Context, params CreateShipmentParams) (*ShipmentRecord, error) {
	const op = "delhivery.create_shipment"

	paymentMode := "Prepaid"
	if params.PaymentMode == domain.PaymentCOD {
		paymentMode = "COD"
	}

	var descriptions []string
	var totalQty int32
	for _, item := range params.Items {
		descriptions = append(descriptions, item.Name)
		totalQty += item.Quantity
	}

	shipment := delhiveryShipment{
		Name:          params.Address.Name,
		Add:           params.Address.Street,
		City:          params.Address.City,
		State:         params.Address.State,
		Pin:           params.Address.Pincode,
		Country:       "India",
		Phone:         params.Address.Phone,
		Order:         params.OrderNumber,
		PaymentMode:   paymentMode,
		CODAmount:     formatRupees(params.CODAmountPaise()),
		TotalAmount:   formatRupees(params.FinalPaise),
		ProductsDesc:  strings.Join(descriptions, ", "),
		Quantity:      formatInt32(totalQty),
		WeightGrams:   formatInt32(params.Package.WeightGrams),
		ShipmentWidth: formatInt32(params.Package.WidthCm),
		ShipmentHt:    formatInt32(params.Package.HeightCm),
		ShipmentLen:   formatInt32(params.Package.LengthCm),
		SellerGSTTin:  p.cfg.Seller.GSTIN,
		SellerName:    p.cfg.Seller.Name,
	}

	data := delhiveryCreateData{Shipments: []delhiveryShipment{shipment}}
	data.PickupLoc.Name = p.cfg.Seller.PickupLocation

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode shipment manifest")
	}

	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(encoded))

	var created struct {
		Success  bool `json:"success"`
		Packages []struct {
			Waybill string `json:"waybill"`
			RefNum  string `json:"refnum"`
			Status  string `json:"status"`
			Remarks any    `json:"remarks"`
		} `json:"packages"`
		Rmk string `json:"rmk"`
	}

	status, raw, err := p.rest.doForm(ctx, http.MethodPost, "/api/cmu/create.json", p.authHeaders(), form, &created)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}
	if !created.Success || len(created.Packages) == 0 || created.Packages[0].Waybill == "" {
		message := created.Rmk
		if message == "" && len(created.Packages) > 0 {
			message = remarksText(created.Packages[0].Remarks)
		}
		if message == "" {
			message = errorMessage(raw)
		}
		// Manifest rejections come back as 200 with success=false.
		return nil, classifyStatus(op, http.StatusBadRequest, message)
	}

	pkg := created.Packages[0]
	return &ShipmentRecord{
		Provider:    domain.CourierDelhivery,
		TrackingID:  pkg.Waybill,
		AWB:         pkg.Waybill,
		OrderNumber: pkg.RefNum,
		Status:      pkg.Status,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// remarksText flattens the remarks field, which Delhivery returns as either
// a string or a list of strings.
func remarksText(remarks any) string {
	switch v := remarks.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return ""
	}
}

// CheckServiceability looks up pincode coverage. An empty delivery_codes list
// means the pincode is not covered.
func (p *Delhivery) CheckServiceability(ctx context.Context, pincode string) (*Serviceability, error) {
	const op = "delhivery.serviceability"

	var resp struct {
		DeliveryCodes []struct {
			PostalCode struct {
				COD     string `json:"cod"`
				Prepaid string `json:"pre_paid"`
				Pickup  string `json:"pickup"`
			} `json:"postal_code"`
		} `json:"delivery_codes"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodGet, "/c/api/pin-codes/json/?filter_codes="+url.QueryEscape(pincode), p.authHeaders(), nil, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	result := &Serviceability{}
	if len(resp.DeliveryCodes) == 0 {
		return result, nil
	}

	codes := resp.DeliveryCodes[0].PostalCode
	result.CODAvailable = codes.COD == "Y"
	result.PrepaidAvailable = codes.Prepaid == "Y"
	result.ReversePickupAvailable = codes.Pickup == "Y"
	return result, nil
}

// TrackByAWB fetches live tracking for a Delhivery waybill.
func (p *Delhivery) TrackByAWB(ctx context.Context, awb string) (*domain.TrackingView, error) {
	const op = "delhivery.track"

	var resp struct {
		ShipmentData []struct {
			Shipment struct {
				AWB    string `json:"AWB"`
				RefNo  string `json:"ReferenceNo"`
				Status struct {
					Status       string `json:"Status"`
					Instructions string `json:"Instructions"`
				} `json:"Status"`
				EDD   string `json:"ExpectedDeliveryDate"`
				Scans []struct {
					ScanDetail struct {
						Scan         string `json:"Scan"`
						ScanDateTime string `json:"ScanDateTime"`
						ScannedLoc   string `json:"ScannedLocation"`
						Instructions string `json:"Instructions"`
						StatusCode   string `json:"StatusCode"`
					} `json:"ScanDetail"`
				} `json:"Scans"`
			} `json:"Shipment"`
		} `json:"ShipmentData"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodGet, "/api/v1/packages/json/?waybill="+url.QueryEscape(awb), p.authHeaders(), nil, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status == http.StatusNotFound {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "No shipment found for waybill " + awb}
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}
	if len(resp.ShipmentData) == 0 {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "No shipment found for waybill " + awb}
	}

	shipment := resp.ShipmentData[0].Shipment
	view := &domain.TrackingView{
		Provider:      domain.CourierDelhivery,
		AWB:           awb,
		CurrentStatus: shipment.Status.Status,
		CourierName:   "Delhivery",
		EDD:           shipment.EDD,
		OrderRef:      shipment.RefNo,
		Activities:    make([]domain.TrackingActivity, 0, len(shipment.Scans)),
	}

	for _, scan := range shipment.Scans {
		detail := scan.ScanDetail
		date, _ := time.Parse("2006-01-02T15:04:05", detail.ScanDateTime)
		activity := detail.Instructions
		if activity == "" {
			activity = detail.Scan
		}
		view.Activities = append(view.Activities, domain.TrackingActivity{
			Activity:   activity,
			Date:       date,
			Location:   detail.ScannedLoc,
			StatusCode: detail.StatusCode,
		})
	}
	view.SortNewestFirst()

	return view, nil
}

// SchedulePickup books a pickup slot at the registered warehouse.
func (p *Delhivery) SchedulePickup(ctx context.Context, shipmentID string) (*PickupResult, error) {
	const op = "delhivery.schedule_pickup"

	// Delhivery books pickups per warehouse per day, not per shipment.
	pickupDate := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	body := map[string]any{
		"pickup_location":        p.cfg.Seller.PickupLocation,
		"pickup_date":            pickupDate,
		"pickup_time":            "11:00:00",
		"expected_package_count": 1,
	}
	var resp struct {
		PickupID int64 `json:"pickup_id"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/fm/request/new/", p.authHeaders(), body, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	return &PickupResult{
		PickupID:     formatInt64(resp.PickupID),
		ScheduledFor: pickupDate,
	}, nil
}

// CancelShipment cancels a Delhivery package by waybill.
func (p *Delhivery) CancelShipment(ctx context.Context, awb string) error {
	const op = "delhivery.cancel_shipment"

	body := map[string]any{"waybill": awb, "cancellation": "true"}
	var resp struct {
		Status bool   `json:"status"`
		Remark string `json:"remark"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/api/p/edit", p.authHeaders(), body, &resp)
	if err != nil {
		return classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return classifyStatus(op, status, errorMessage(raw))
	}
	if !resp.Status {
		message := resp.Remark
		if message == "" {
			message = errorMessage(raw)
		}
		return classifyStatus(op, http.StatusBadRequest, message)
	}
	return nil
}
