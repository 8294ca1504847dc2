package courier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"go.uber.org/zap"
)

// Shiprocket tokens are valid for 10 days.
const shiprocketTokenTTL = 10 * 24 * time.Hour

// ShiprocketConfig contains configuration for the Shiprocket provider.
type ShiprocketConfig struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
	Seller   SellerDetails
	Logger   *zap.Logger
}

// Shiprocket implements Provider against the Shiprocket aggregator API.
type Shiprocket struct {
	cfg    ShiprocketConfig
	rest   *restClient
	tokens tokenCache
	logger *zap.Logger
}

// NewShiprocket creates a new Shiprocket courier provider.
func NewShiprocket(cfg ShiprocketConfig) (*Shiprocket, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", "shiprocket"))

	return &Shiprocket{
		cfg:    cfg,
		rest:   newRestClient(cfg.BaseURL, "shiprocket", cfg.Timeout, logger),
		logger: logger,
	}, nil
}

// Code identifies the aggregator.
func (p *Shiprocket) Code() domain.CourierCode {
	return domain.CourierShiprocket
}

// authenticate returns a bearer token, fetching one lazily when the cached
// token is absent or expired. Auth failures are not retried: credentials are
// static, a retry would not change the outcome.
func (p *Shiprocket) authenticate(ctx context.Context) (string, error) {
	const op = "shiprocket.authenticate"

	return p.tokens.Get(ctx, func(ctx context.Context) (string, time.Duration, error) {
		body := map[string]string{
			"email":    p.cfg.Email,
			"password": p.cfg.Password,
		}
		var resp struct {
			Token string `json:"token"`
		}

		status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v1/external/auth/login", nil, body, &resp)
		if err != nil {
			return "", 0, classifyTransport(op, err)
		}
		if status != http.StatusOK || resp.Token == "" {
			return "", 0, &domain.Error{
				Code:    domain.EAUTH,
				Op:      op,
				Message: fmt.Sprintf("Shiprocket rejected credentials: %s", errorMessage(raw)),
			}
		}

		p.logger.Info("authenticated with shiprocket")
		return resp.Token, shiprocketTokenTTL, nil
	})
}

func (p *Shiprocket) authHeaders(ctx context.Context) (map[string]string, error) {
	token, err := p.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// shiprocketOrderItem is the wire shape of a line item.
type shiprocketOrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int32   `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	Tax          float64 `json:"tax"`
}

// shiprocketCreatePayload is the adhoc order creation request.
type shiprocketCreatePayload struct {
	OrderID              string                `json:"order_id"`
	OrderDate            string                `json:"order_date"`
	PickupLocation       string                `json:"pickup_location"`
	BillingCustomerName  string                `json:"billing_customer_name"`
	BillingAddress       string                `json:"billing_address"`
	BillingCity          string                `json:"billing_city"`
	BillingPincode       string                `json:"billing_pincode"`
	BillingState         string                `json:"billing_state"`
	BillingCountry       string                `json:"billing_country"`
	BillingEmail         string                `json:"billing_email,omitempty"`
	BillingPhone         string                `json:"billing_phone"`
	ShippingIsBilling    bool                  `json:"shipping_is_billing"`
	OrderItems           []shiprocketOrderItem `json:"order_items"`
	PaymentMethod        string                `json:"payment_method"`
	SubTotal             float64               `json:"sub_total"`
	TotalDiscount        float64               `json:"total_discount"`
	Length               float64               `json:"length"`
	Breadth              float64               `json:"breadth"`
	Height               float64               `json:"height"`
	Weight               float64               `json:"weight"`
	CompanyName          string                `json:"company_name,omitempty"`
	ResellerName         string                `json:"reseller_name,omitempty"`
}

// CreateShipment registers an adhoc order with Shiprocket and requests AWB
// assignment. A failed AWB assignment is tolerated: the shipment exists at
// the courier, the AWB can be assigned later from the Shiprocket panel.
func (p *Shiprocket) CreateShipment(ctx context.Context, params CreateShipmentParams) (*ShipmentRecord, error) {
	const op = "shiprocket.create_shipment"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	paymentMethod := "Prepaid"
	if params.PaymentMode == domain.PaymentCOD {
		paymentMethod = "COD"
	}

	items := make([]shiprocketOrderItem, 0, len(params.Items))
	for _, item := range params.Items {
		items = append(items, shiprocketOrderItem{
			Name:         item.Name,
			SKU:          item.SKU,
			Units:        item.Quantity,
			SellingPrice: paiseToRupees(item.UnitPricePaise),
			Tax:          params.GSTRate * 100,
		})
	}

	payload := shiprocketCreatePayload{
		OrderID:             params.OrderNumber,
		OrderDate:           params.OrderDate.Format("2006-01-02 15:04"),
		PickupLocation:      p.cfg.Seller.PickupLocation,
		BillingCustomerName: params.Address.Name,
		BillingAddress:      params.Address.Street,
		BillingCity:         params.Address.City,
		BillingPincode:      params.Address.Pincode,
		BillingState:        params.Address.State,
		BillingCountry:      "India",
		BillingEmail:        params.CustomerEmail,
		BillingPhone:        params.Address.Phone,
		ShippingIsBilling:   true,
		OrderItems:          items,
		PaymentMethod:       paymentMethod,
		SubTotal:            paiseToRupees(params.FinalPaise),
		TotalDiscount:       paiseToRupees(params.DiscountPaise),
		Length:              float64(params.Package.LengthCm),
		Breadth:             float64(params.Package.WidthCm),
		Height:              float64(params.Package.HeightCm),
		Weight:              gramsToKg(params.Package.WeightGrams),
		CompanyName:         p.cfg.Seller.Name,
	}

	var created struct {
		OrderID    int64  `json:"order_id"`
		ShipmentID int64  `json:"shipment_id"`
		Status     string `json:"status"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v1/external/orders/create/adhoc", headers, payload, &created)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status == http.StatusUnauthorized {
		p.tokens.Invalidate()
	}
	if status != http.StatusOK || created.ShipmentID == 0 {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	record := &ShipmentRecord{
		Provider:    domain.CourierShiprocket,
		ShipmentID:  strconv.FormatInt(created.ShipmentID, 10),
		OrderNumber: strconv.FormatInt(created.OrderID, 10),
		Status:      created.Status,
		CreatedAt:   time.Now().UTC(),
	}

	awb, courierName, err := p.assignAWB(ctx, headers, created.ShipmentID)
	if err != nil {
		// The shipment exists courier-side; surface the record without an AWB.
		p.logger.Warn("shiprocket awb assignment failed, shipment created without awb",
			zap.Int64("shipment_id", created.ShipmentID),
			zap.Error(err),
		)
		record.TrackingID = record.ShipmentID
		return record, nil
	}

	record.AWB = awb
	record.TrackingID = awb
	record.CourierName = courierName
	return record, nil
}

// assignAWB requests a waybill for a created shipment.
func (p *Shiprocket) assignAWB(ctx context.Context, headers map[string]string, shipmentID int64) (awb, courierName string, err error) {
	const op = "shiprocket.assign_awb"

	body := map[string]int64{"shipment_id": shipmentID}
	var resp struct {
		Response struct {
			Data struct {
				AWBCode     string `json:"awb_code"`
				CourierName string `json:"courier_name"`
			} `json:"data"`
		} `json:"response"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v1/external/courier/assign/awb", headers, body, &resp)
	if err != nil {
		return "", "", classifyTransport(op, err)
	}
	if status != http.StatusOK || resp.Response.Data.AWBCode == "" {
		return "", "", classifyStatus(op, status, errorMessage(raw))
	}

	return resp.Response.Data.AWBCode, resp.Response.Data.CourierName, nil
}

// CheckServiceability reports delivery options for a destination pincode.
func (p *Shiprocket) CheckServiceability(ctx context.Context, pincode string) (*Serviceability, error) {
	const op = "shiprocket.serviceability"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("pickup_postcode", p.cfg.Seller.PickupPincode)
	query.Set("delivery_postcode", pincode)
	query.Set("cod", "1")
	query.Set("weight", "0.5")

	var resp struct {
		Data struct {
			AvailableCourierCompanies []struct {
				COD      int    `json:"cod"`
				IsReturn int    `json:"is_return"`
				Name     string `json:"courier_name"`
			} `json:"available_courier_companies"`
		} `json:"data"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodGet, "/v1/external/courier/serviceability/?"+query.Encode(), headers, nil, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	// No companies means unknown: assume unavailable.
	result := &Serviceability{}
	for _, company := range resp.Data.AvailableCourierCompanies {
		result.PrepaidAvailable = true
		if company.COD == 1 {
			result.CODAvailable = true
		}
		if company.IsReturn == 1 {
			result.ReversePickupAvailable = true
		}
	}
	return result, nil
}

// TrackByAWB fetches live tracking and normalizes it into the tracking view.
func (p *Shiprocket) TrackByAWB(ctx context.Context, awb string) (*domain.TrackingView, error) {
	const op = "shiprocket.track"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TrackingData struct {
			ShipmentTrack []struct {
				AWBCode        string `json:"awb_code"`
				CourierName    string `json:"courier_name"`
				CurrentStatus  string `json:"current_status"`
				EDD            string `json:"edd"`
				ChannelOrderID string `json:"channel_order_id"`
			} `json:"shipment_track"`
			ShipmentTrackActivities []struct {
				Date     string `json:"date"`
				Activity string `json:"activity"`
				Location string `json:"location"`
				Status   string `json:"sr-status"`
			} `json:"shipment_track_activities"`
			ETD string `json:"etd"`
		} `json:"tracking_data"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodGet, "/v1/external/courier/track/awb/"+url.PathEscape(awb), headers, nil, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status == http.StatusNotFound {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "No shipment found for waybill " + awb}
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}
	if len(resp.TrackingData.ShipmentTrack) == 0 {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Op: op, Message: "No shipment found for waybill " + awb}
	}

	// Shiprocket may report multiple courier legs; the first entry is the
	// latest leg and carries the current status.
	latest := resp.TrackingData.ShipmentTrack[0]

	view := &domain.TrackingView{
		Provider:      domain.CourierShiprocket,
		AWB:           awb,
		CurrentStatus: latest.CurrentStatus,
		CourierName:   latest.CourierName,
		EDD:           latest.EDD,
		OrderRef:      latest.ChannelOrderID,
		Activities:    make([]domain.TrackingActivity, 0, len(resp.TrackingData.ShipmentTrackActivities)),
	}
	if view.EDD == "" {
		view.EDD = resp.TrackingData.ETD
	}

	const dateLayout = "2006-01-02 15:04:05"
	for _, activity := range resp.TrackingData.ShipmentTrackActivities {
		date, _ := time.Parse(dateLayout, activity.Date)
		view.Activities = append(view.Activities, domain.TrackingActivity{
			Activity:   activity.Activity,
			Date:       date,
			Location:   activity.Location,
			StatusCode: activity.Status,
		})
	}
	view.SortNewestFirst()

	return view, nil
}

// SchedulePickup requests courier pickup for a created shipment.
func (p *Shiprocket) SchedulePickup(ctx context.Context, shipmentID string) (*PickupResult, error) {
	const op = "shiprocket.schedule_pickup"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	id, err := strconv.ParseInt(shipmentID, 10, 64)
	if err != nil {
		return nil, &domain.Error{Code: domain.EINVALID, Op: op, Message: "Invalid shipment id: " + shipmentID}
	}

	body := map[string][]int64{"shipment_id": {id}}
	var resp struct {
		PickupStatus int `json:"pickup_status"`
		Response     struct {
			PickupScheduledDate string `json:"pickup_scheduled_date"`
			PickupTokenNumber   string `json:"pickup_token_number"`
		} `json:"response"`
	}

	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v1/external/courier/generate/pickup", headers, body, &resp)
	if err != nil {
		return nil, classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return nil, classifyStatus(op, status, errorMessage(raw))
	}

	return &PickupResult{
		PickupID:     resp.Response.PickupTokenNumber,
		ScheduledFor: resp.Response.PickupScheduledDate,
	}, nil
}

// CancelShipment cancels a shipment by waybill.
func (p *Shiprocket) CancelShipment(ctx context.Context, awb string) error {
	const op = "shiprocket.cancel_shipment"

	headers, err := p.authHeaders(ctx)
	if err != nil {
		return err
	}

	body := map[string][]string{"awbs": {awb}}
	status, raw, err := p.rest.doJSON(ctx, http.MethodPost, "/v1/external/orders/cancel/shipment/awbs", headers, body, nil)
	if err != nil {
		return classifyTransport(op, err)
	}
	if status != http.StatusOK {
		return classifyStatus(op, status, errorMessage(raw))
	}
	return nil
}
