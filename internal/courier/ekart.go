package courier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"go.uber.org/zap"
)

// EkartConfig contains configuration for the Ekart Logistics provider.
type EkartConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Vendor is the merchant code Ekart issues per seller account.
	Vendor  string
	Timeout time.Duration
	Seller  SellerDetails
	Logger  *zap.Logger
}

// Ekart implements Provider against the Ekart Logistics API.
type Ekart struct {
	cfg    EkartConfig
	rest   *restClient
	tokens tokenCache
	logger *zap.Logger
}

// NewEkart creates a new Ekart courier provider.
func NewEkart(cfg EkartConfig) (*Ekart, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", "ekart"))

	return &Ekart{
		cfg:    cfg,
		rest:   newRestClient(cfg.BaseURL, "ekart", cfg.Timeout, logger),
		logger: logger,
	}, nil
}

// Code identifies the aggregator.
func (p *Ekart) Code() domain.CourierCode {
	return domain.CourierEkart
}

// authenticate exchanges client credentials for a short-lived access token.
func (p *Ekart) authenticate(ctx context.Context) (string, error) {
	const op = "ekart.authenticate"

	return p.tokens.Get(ctx, func(ctx context.Context) (string, time.Duration, error) {
		body := map[string]string{
			"client_id":     p.cfg.ClientID,
			"client_secret": p.cfg.ClientSecret,
			"grant_type":    "client_credentials",
		}
		var resp struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int64  `json:"expires_in"`
		}

		status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/auth/token", nil, body, &resp)
		if err != nil {
			return "", 0, classifyTransport(op, err)
		}
		if status != http.StatusOK || resp.AccessToken == "" {
			return "", 0, &domain.Error{
				Code:    domain.EAUTH,
				Op:      op,
				Message: fmt.Sprintf("Ekart rejected credentials: %s", errorMessage(raw)),
			}
		}

		p.logger.Info("authenticated with ekart", zap.Int64("expires_in", resp.ExpiresIn))
		return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
	})
}

func (p *Ekart) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := p.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
		"X-Vendor-Code": p.cfg.Vendor,
	}, nil
}

type ekartLineItem struct {
	ProductTitle string  `json:"product_title"`
	SKU          string  `json:"seller_sku"`
	Quantity     int32   `json:"quantity"`
	Amount       float64 `json:"amount"`
}

type ekartAddress struct {
	Name    string `json:"name"`
	Address string `json:"address_line"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"primary_contact_number"`
}

type ekartCreatePayload struct {
	ClientOrderID   string          `json:"client_order_id"`
	Vendor          string          `json:"vendor"`
	ServiceType     string          `json:"service_type"`
	DeliveryAddress ekartAddress    `json:"delivery_address"`
	PickupAddress   ekartAddress    `json:"pickup_address"`
	Items           []ekartLineItem `json:"shipment_items"`
	CODAmount       float64         `json:"cod_amount"`
	InvoiceValue    float64         `json:"invoice_value"`
	WeightGrams     int32           `json:"weight_in_grams"`
	LengthCm        int32           `json:"length_in_cms"`
	BreadthCm       int32           `json:"breadth_in_cms"`
	HeightCm        int32           `json:"height_in_cms"`
}

// CreateShipment registers a forward shipment with Ekart.
func (p *Ekart) CreateShipment(ctx context.Context, params CreateShipmentParams) (*ShipmentRecord, error) {
	const op = "ekart.create_shipment"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	serviceType := "FORWARD"
	items := make([]ekartLineItem, 0, len(params.Items))
	for _, item := range params.Items {
		items = append(items, ekartLineItem{
			ProductTitle: item.Name,
			SKU:          item.SKU,
			Quantity:     item.Quantity,
			Amount:       paiseToRupees(item.UnitPricePaise * int64(item.Quantity)),
		})
	}

	payload := ekartCreatePayload{
		ClientOrderID: params.OrderNumber,
		Vendor:        p.cfg.Vendor,
		ServiceType:   serviceType,
		DeliveryAddress: ekartAddress{
			Name:    params.Address.Name,
			Address: params.Address.Street,
			City:    params.Address.City,
			State:   params.Address.State,
			Pincode: params.Address.Pincode,
			Phone:   params.Address.Phone,
		},
		PickupAddress: ekartAddress{
			Name:    p.cfg.Seller.Name,
			Address: p.cfg.Seller.Address,
			Pincode: p.cfg.Seller.PickupPincode,
		},
		Items:        items,
		CODAmount:    paiseToRupees(params.CODAmountPaise()),
		InvoiceValue: paiseToRupees(params.FinalPaise),
		WeightGrams:  params.Package.WeightGrams,
		LengthCm:     params.Package.LengthCm,
		BreadthCm:    params.Package.WidthCm,
		HeightCm:     params.Package.HeightCm,
	}

	var created struct {
		TrackingID     string `json:"tracking_id"`
		Waybill        string `json:"waybill"`
		CODWaybill     string `json:"cod_waybill"`
		ShipmentStatus string `json:"shipment_status"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v2/shipments/create", headers, payload, &created)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status == http.StatusUnauthorized {
		p.tokens.Invalidate()
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}
	if created.TrackingID == "" {
		return nil, &domain.Error{Code: domain.ETRANSIENT, Op: op, Message: "Ekart returned no tracking id"}
	}

	return &ShipmentRecord{
		Provider:    domain.CourierEkart,
		TrackingID:  created.TrackingID,
		AWB:         created.Waybill,
		OrderNumber: params.OrderNumber,
		CODWaybill:  created.CODWaybill,
		Vendor:      p.cfg.Vendor,
		Status:      created.ShipmentStatus,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// CheckServiceability reports delivery options for a destination pincode.
func (p *Ekart) CheckServiceability(ctx context.Context, pincode string) (*Serviceability, error) {
	const op = "ekart.serviceability"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Serviceable bool `json:"serviceable"`
		COD         bool `json:"cod_serviceable"`
		Reverse     bool `json:"reverse_serviceable"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodGet, "/v2/serviceability/"+url.PathEscape(pincode), headers, nil, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	return &Serviceability{
		PrepaidAvailable:       resp.Serviceable,
		CODAvailable:           resp.COD,
		ReversePickupAvailable: resp.Reverse,
	}, nil
}

// TrackByAWB fetches live tracking for an Ekart tracking id.
func (p *Ekart) TrackByAWB(ctx context.Context, awb string) (*domain.TrackingView, error) {
	const op = "ekart.track"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TrackingID    string `json:"tracking_id"`
		ClientOrderID string `json:"client_order_id"`
		Status        string `json:"shipment_status"`
		ExpectedDate  string `json:"expected_delivery_date"`
		History       []struct {
			EventDate   string `json:"event_date"`
			Description string `json:"event_description"`
			City        string `json:"city"`
			StatusCode  string `json:"status_code"`
		} `json:"tracking_history"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodGet, "/v2/shipments/track/"+url.PathEscape(awb), headers, nil, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status == http.StatusNotFound {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "No shipment found for tracking id " + awb}
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	view := &domain.TrackingView{
		Provider:      domain.CourierEkart,
		AWB:           awb,
		CurrentStatus: resp.Status,
		CourierName:   "Ekart Logistics",
		EDD:           resp.ExpectedDate,
		OrderRef:      resp.ClientOrderID,
		Activities:    make([]domain.TrackingActivity, 0, len(resp.History)),
	}

	for _, event := range resp.History {
		date, _ := time.Parse(time.RFC3339, event.EventDate)
		view.Activities = append(view.Activities, domain.TrackingActivity{
			Activity:   event.Description,
			Date:       date,
			Location:   event.City,
			StatusCode: event.StatusCode,
		})
	}
	view.SortNewestFirst()

	return view, nil
}

// SchedulePickup requests pickup for an Ekart shipment.
func (p *Ekart) SchedulePickup(ctx context.Context, shipmentID string) (*PickupResult, error) {
	const op = "ekart.schedule_pickup"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"tracking_ids": []string{shipmentID},
		"vendor":       p.cfg.Vendor,
	}
	var resp struct {
		PickupRequestID string `json:"pickup_request_id"`
		ScheduledDate   string `json:"scheduled_date"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v2/pickups", headers, body, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	return &PickupResult{
		PickupID:     resp.PickupRequestID,
		ScheduledFor: resp.ScheduledDate,
	}, nil
}

// CancelShipment cancels an Ekart shipment by tracking id.
func (p *Ekart) CancelShipment(ctx context.Context, awb string) error {
	const op = "ekart.cancel_shipment"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return err
	}

	body := map[string]string{"tracking_id": awb, "vendor": p.cfg.Vendor}
	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v2/shipments/cancel", headers, body, nil)
	if err != nil {
		return classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return classifyStatus(op, status, errorMessage(raw))
	}
	return nil
}
