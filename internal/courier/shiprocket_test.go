package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naturemedica/commerce/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShiprocketTest(t *testing.T, handler http.Handler) (*Shiprocket, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewShiprocket(ShiprocketConfig{
		BaseURL:  server.URL,
		Email:    "ops@naturemedica.in",
		Password: "secret",
		Timeout:  5 * time.Second,
		Seller: SellerDetails{
			Name:           "Nature Medica",
			PickupLocation: "Primary",
			PickupPincode:  "110001",
		},
	})
	require.NoError(t, err)
	return provider, server
}

func shiprocketLogin(t *testing.T, w http.ResponseWriter) {
	t.Helper()
	json.NewEncoder(w).Encode(map[string]string{"token": "sr-token"})
}

func sampleCreateParams() CreateShipmentParams {
	return CreateShipmentParams{
		OrderNumber: "NM000050",
		OrderDate:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		Items: []ShipmentItem{
			{Name: "Ashwagandha Capsules", SKU: "NM-ASH-60", Quantity: 2, UnitPricePaise: 60000},
		},
		Address: domain.ShippingAddress{
			Name:    "Asha Verma",
			Street:  "14 MG Road",
			City:    "Pune",
			State:   "Maharashtra",
			Pincode: "411001",
			Phone:   "9800011122",
		},
		FinalPaise:    100000,
		DiscountPaise: 20000,
		PaymentMode:   domain.PaymentOnline,
		Package:       Package{WeightGrams: 500, LengthCm: 30, WidthCm: 20, HeightCm: 15},
		GSTRate:       0.18,
	}
}

func TestShiprocket_CreateShipment(t *testing.T) {
	var createPayload shiprocketCreatePayload

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sr-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createPayload))
		json.NewEncoder(w).Encode(map[string]any{
			"order_id":    774411,
			"shipment_id": 661100,
			"status":      "NEW",
		})
	})
	mux.HandleFunc("/v1/external/courier/assign/awb", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"data": map[string]any{
					"awb_code":     "SRAWB900123",
					"courier_name": "Xpressbees",
				},
			},
		})
	})

	provider, _ := newShiprocketTest(t, mux)

	record, err := provider.CreateShipment(context.Background(), sampleCreateParams())
	require.NoError(t, err)

	assert.Equal(t, domain.CourierShiprocket, record.Provider)
	assert.Equal(t, "SRAWB900123", record.TrackingID)
	assert.Equal(t, "SRAWB900123", record.AWB)
	assert.Equal(t, "661100", record.ShipmentID)
	assert.Equal(t, "774411", record.OrderNumber)
	assert.Equal(t, "Xpressbees", record.CourierName)

	// Amounts cross the wire in rupees, weights in kilograms.
	assert.Equal(t, "NM000050", createPayload.OrderID)
	assert.Equal(t, 1000.0, createPayload.SubTotal)
	assert.Equal(t, 200.0, createPayload.TotalDiscount)
	assert.Equal(t, 0.5, createPayload.Weight)
	assert.Equal(t, "Prepaid", createPayload.PaymentMethod)
	assert.Equal(t, "Primary", createPayload.PickupLocation)
	require.Len(t, createPayload.OrderItems, 1)
	assert.Equal(t, 600.0, createPayload.OrderItems[0].SellingPrice)
}

func TestShiprocket_CreateShipment_AWBAssignmentFailureIsTolerated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"order_id": 1, "shipment_id": 42, "status": "NEW"})
	})
	mux.HandleFunc("/v1/external/courier/assign/awb", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "No courier serviceable"})
	})

	provider, _ := newShiprocketTest(t, mux)

	record, err := provider.CreateShipment(context.Background(), sampleCreateParams())
	require.NoError(t, err, "shipment exists courier-side even without an AWB")
	assert.Empty(t, record.AWB)
	assert.Equal(t, "42", record.TrackingID, "falls back to shipment id for tracking")
}

func TestShiprocket_CreateShipment_WalletExhausted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "You do not have enough balance in your wallet to perform this action",
		})
	})

	provider, _ := newShiprocketTest(t, mux)

	_, err := provider.CreateShipment(context.Background(), sampleCreateParams())
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "enough balance")
}

func TestShiprocket_CreateShipment_AuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
	})

	provider, _ := newShiprocketTest(t, mux)

	_, err := provider.CreateShipment(context.Background(), sampleCreateParams())
	require.Error(t, err)
	assert.Equal(t, domain.EAUTH, domain.ErrorCode(err))
}

func TestShiprocket_TokenReusedAcrossCalls(t *testing.T) {
	var logins int

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/courier/serviceability/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"available_courier_companies": []map[string]any{{"cod": 1, "is_return": 0, "courier_name": "Delhivery Surface"}},
		}})
	})

	provider, _ := newShiprocketTest(t, mux)

	for i := 0; i < 3; i++ {
		_, err := provider.CheckServiceability(context.Background(), "411001")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, logins)
}

func TestShiprocket_CheckServiceability(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/courier/serviceability/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "110001", r.URL.Query().Get("pickup_postcode"))
		assert.Equal(t, "411001", r.URL.Query().Get("delivery_postcode"))
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{
			"available_courier_companies": []map[string]any{
				{"cod": 0, "is_return": 1, "courier_name": "Bluedart"},
				{"cod": 1, "is_return": 0, "courier_name": "Xpressbees"},
			},
		}})
	})

	provider, _ := newShiprocketTest(t, mux)

	result, err := provider.CheckServiceability(context.Background(), "411001")
	require.NoError(t, err)
	assert.True(t, result.PrepaidAvailable)
	assert.True(t, result.CODAvailable)
	assert.True(t, result.ReversePickupAvailable)
}

func TestShiprocket_CheckServiceability_NoCouriers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/courier/serviceability/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"available_courier_companies": []any{}}})
	})

	provider, _ := newShiprocketTest(t, mux)

	result, err := provider.CheckServiceability(context.Background(), "999999")
	require.NoError(t, err)
	assert.False(t, result.PrepaidAvailable)
	assert.False(t, result.CODAvailable)
}

func TestShiprocket_TrackByAWB(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/courier/track/awb/SRAWB900123", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tracking_data": map[string]any{
				"shipment_track": []map[string]any{{
					"awb_code":         "SRAWB900123",
					"courier_name":     "Xpressbees",
					"current_status":   "In Transit",
					"edd":              "2026-08-25",
					"channel_order_id": "NM000050",
				}},
				"shipment_track_activities": []map[string]any{
					{"date": "2026-08-21 09:15:00", "activity": "Picked up", "location": "Delhi Hub", "sr-status": "6"},
					{"date": "2026-08-22 18:40:00", "activity": "In transit to Pune", "location": "Nagpur Hub", "sr-status": "18"},
				},
			},
		})
	})

	provider, _ := newShiprocketTest(t, mux)

	view, err := provider.TrackByAWB(context.Background(), "SRAWB900123")
	require.NoError(t, err)

	assert.Equal(t, domain.CourierShiprocket, view.Provider)
	assert.Equal(t, "In Transit", view.CurrentStatus)
	assert.Equal(t, "NM000050", view.OrderRef)
	require.Len(t, view.Activities, 2)
	assert.Equal(t, "In transit to Pune", view.Activities[0].Activity, "activities are newest first")
	assert.Equal(t, "Picked up", view.Activities[1].Activity)
}

func TestShiprocket_TrackByAWB_UnknownWaybill(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/courier/track/awb/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tracking_data": map[string]any{"shipment_track": []any{}}})
	})

	provider, _ := newShiprocketTest(t, mux)

	_, err := provider.TrackByAWB(context.Background(), "BOGUS")
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestShiprocket_CancelShipment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		shiprocketLogin(t, w)
	})
	mux.HandleFunc("/v1/external/orders/cancel/shipment/awbs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AWBs []string `json:"awbs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"SRAWB900123"}, body.AWBs)
		json.NewEncoder(w).Encode(map[string]string{"message": "cancelled"})
	})

	provider, _ := newShiprocketTest(t, mux)

	require.NoError(t, provider.CancelShipment(context.Background(), "SRAWB900123"))
}
